package guard_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-role-sessions/guard"
	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/jrsteele09/go-role-sessions/session"
	"github.com/jrsteele09/go-role-sessions/token/jwt"
	"github.com/stretchr/testify/require"
)

func blockingResolver() *stubResolver {
	r := resolverWith(map[namespace.Namespace]session.Resolved{
		namespace.User: granted(namespace.User, jwt.Claims{Role: "user", Username: "alice"}),
	})
	r.wait = make(chan struct{})
	return r
}

func waitForCalls(t *testing.T, r *stubResolver, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.Calls() >= n }, time.Second, time.Millisecond)
}

func TestMount_AppliesDecision(t *testing.T) {
	r := resolverWith(map[namespace.Namespace]session.Resolved{
		namespace.User: granted(namespace.User, jwt.Claims{Role: "user"}),
	})
	m := guard.NewMount(r, guard.RoleGuard(namespace.User))
	require.Equal(t, guard.Pending, m.Current().State)

	d, applied := m.Navigate(context.Background(), "/dashboard")
	require.True(t, applied)
	require.Equal(t, guard.Granted, d.State)
	require.Equal(t, guard.Granted, m.Current().State)
}

func TestMount_PendingWhileEvaluating(t *testing.T) {
	r := blockingResolver()
	m := guard.NewMount(r, guard.RoleGuard(namespace.User))

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Navigate(context.Background(), "/dashboard")
	}()
	waitForCalls(t, r, 1)
	require.Equal(t, guard.Pending, m.Current().State)
	require.False(t, m.Current().Renders())

	close(r.wait)
	<-done
	require.Equal(t, guard.Granted, m.Current().State)
}

func TestMount_UnmountSuppressesTransition(t *testing.T) {
	r := blockingResolver()
	m := guard.NewMount(r, guard.RoleGuard(namespace.User))

	type outcome struct {
		d       guard.Decision
		applied bool
	}
	out := make(chan outcome, 1)
	go func() {
		d, applied := m.Navigate(context.Background(), "/dashboard")
		out <- outcome{d, applied}
	}()
	waitForCalls(t, r, 1)
	m.Unmount()
	close(r.wait)

	o := <-out
	require.False(t, o.applied)
	require.Empty(t, o.d.Redirect)
	require.Equal(t, guard.Pending, m.Current().State)

	_, applied := m.Navigate(context.Background(), "/dashboard")
	require.False(t, applied)
}

func TestMount_CancelledNavigationSuppressesTransition(t *testing.T) {
	r := blockingResolver()
	m := guard.NewMount(r, guard.RoleGuard(namespace.User))

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan bool, 1)
	go func() {
		_, applied := m.Navigate(ctx, "/dashboard")
		out <- applied
	}()
	waitForCalls(t, r, 1)
	cancel()

	require.False(t, <-out)
	require.Equal(t, guard.Pending, m.Current().State)
}

func TestMount_LatestNavigationWins(t *testing.T) {
	r := blockingResolver()
	m := guard.NewMount(r, guard.RoleGuard(namespace.User))

	first := make(chan bool, 1)
	go func() {
		_, applied := m.Navigate(context.Background(), "/dashboard?first")
		first <- applied
	}()
	waitForCalls(t, r, 1)

	second := make(chan bool, 1)
	go func() {
		_, applied := m.Navigate(context.Background(), "/dashboard?second")
		second <- applied
	}()
	waitForCalls(t, r, 2)
	close(r.wait)

	require.False(t, <-first)
	require.True(t, <-second)
	require.Equal(t, guard.Granted, m.Current().State)
}
