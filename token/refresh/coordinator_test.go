package refresh_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/jrsteele09/go-role-sessions/storage/memory"
	"github.com/jrsteele09/go-role-sessions/token/jwt"
	"github.com/jrsteele09/go-role-sessions/token/refresh"
	"github.com/stretchr/testify/require"
)

type stubRefresher struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, refresh string) (string, error)
}

func (s *stubRefresher) Refresh(ctx context.Context, refresh string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(ctx, refresh)
}

func (s *stubRefresher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func token(t *testing.T, username, role string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(expiresIn))},
		Role:             role,
		Username:         username,
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test"))
	require.NoError(t, err)
	return signed
}

type fixture struct {
	durable *memory.Backend
	tab     *memory.Backend
	store   *storage.Store
}

func setup() *fixture {
	d, tb := memory.New(), memory.New()
	return &fixture{durable: d, tab: tb, store: storage.NewStore(d, tb)}
}

func TestResolve_UsableAccessTokenMakesNoCall(t *testing.T) {
	ctx := context.Background()
	f := setup()
	require.NoError(t, f.store.SetSession(ctx, namespace.User, storage.Record{Access: token(t, "alice", "user", time.Hour), Refresh: "R"}, true))

	stub := &stubRefresher{fn: func(context.Context, string) (string, error) { return "", errors.New("unexpected") }}
	res := refresh.NewCoordinator(f.store, stub).Resolve(ctx, namespace.User)

	require.True(t, res.Granted)
	require.False(t, res.Refreshed)
	require.Equal(t, "alice", res.Claims.Username)
	require.Zero(t, stub.Calls())
}

func TestResolve_ExpiredAccessWithDurableRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("success stores the new token durably", func(t *testing.T) {
		f := setup()
		require.NoError(t, f.store.SetSession(ctx, namespace.User, storage.Record{Access: token(t, "alice", "user", -10*time.Second), Refresh: "R"}, true))

		fresh := token(t, "alice", "user", time.Hour)
		stub := &stubRefresher{fn: func(_ context.Context, r string) (string, error) {
			require.Equal(t, "R", r)
			return fresh, nil
		}}
		res := refresh.NewCoordinator(f.store, stub).Resolve(ctx, namespace.User)

		require.True(t, res.Granted)
		require.True(t, res.Refreshed)
		require.Equal(t, fresh, res.Access)
		require.Equal(t, 1, stub.Calls())

		v, ok, err := f.durable.Get(ctx, "token_user")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, fresh, v)
		require.Zero(t, f.tab.Len())
	})

	t.Run("failure is a denial that keeps the session", func(t *testing.T) {
		f := setup()
		expired := token(t, "alice", "user", -10*time.Second)
		require.NoError(t, f.store.SetSession(ctx, namespace.User, storage.Record{Access: expired, Refresh: "R"}, true))

		stub := &stubRefresher{fn: func(context.Context, string) (string, error) { return "", errors.New("502 bad gateway") }}
		res := refresh.NewCoordinator(f.store, stub).Resolve(ctx, namespace.User)

		require.False(t, res.Granted)
		require.ErrorIs(t, res.Err, apperrors.ErrRefreshFailed)
		require.Equal(t, 1, stub.Calls())

		v, _ := f.store.Get(ctx, namespace.User, storage.FieldRefresh)
		require.Equal(t, "R", v)
		v, _ = f.store.Get(ctx, namespace.User, storage.FieldAccess)
		require.Equal(t, expired, v)
	})

	t.Run("undecodable refreshed token is a denial", func(t *testing.T) {
		f := setup()
		require.NoError(t, f.store.SetSession(ctx, namespace.User, storage.Record{Refresh: "R"}, true))

		stub := &stubRefresher{fn: func(context.Context, string) (string, error) { return "not-a-jwt", nil }}
		res := refresh.NewCoordinator(f.store, stub).Resolve(ctx, namespace.User)

		require.False(t, res.Granted)
		require.ErrorIs(t, res.Err, apperrors.ErrRefreshFailed)
	})
}

func TestResolve_NoSession(t *testing.T) {
	ctx := context.Background()
	f := setup()
	require.NoError(t, f.durable.Set(ctx, "token_user", "garbage"))

	stub := &stubRefresher{fn: func(context.Context, string) (string, error) { return "", errors.New("unexpected") }}
	res := refresh.NewCoordinator(f.store, stub).Resolve(ctx, namespace.User)

	require.False(t, res.Granted)
	require.NoError(t, res.Err)
	require.Zero(t, stub.Calls())
}

func TestResolve_ConcurrentCallersShareOneRefresh(t *testing.T) {
	ctx := context.Background()
	f := setup()
	require.NoError(t, f.store.SetSession(ctx, namespace.Employee, storage.Record{Access: token(t, "eve", "employee", -time.Minute), Refresh: "R"}, false))

	release := make(chan struct{})
	fresh := token(t, "eve", "employee", time.Hour)
	stub := &stubRefresher{fn: func(context.Context, string) (string, error) {
		<-release
		return fresh, nil
	}}
	c := refresh.NewCoordinator(f.store, stub)

	var wg sync.WaitGroup
	results := make([]refresh.Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Resolve(ctx, namespace.Employee)
		}(i)
	}
	require.Eventually(t, func() bool { return stub.Calls() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, 1, stub.Calls())
	for _, res := range results {
		require.True(t, res.Granted)
		require.Equal(t, "eve", res.Claims.Username)
	}
	v, _, _ := f.tab.Get(ctx, "token_employee")
	require.Equal(t, fresh, v)
}

func TestResolve_NamespacesRefreshIndependently(t *testing.T) {
	ctx := context.Background()
	f := setup()
	require.NoError(t, f.store.SetSession(ctx, namespace.User, storage.Record{Access: token(t, "alice", "user", -time.Minute), Refresh: "R-user"}, true))
	require.NoError(t, f.store.SetSession(ctx, namespace.Agency, storage.Record{Access: token(t, "acme", "agency", -time.Minute), Refresh: "R-agency"}, true))

	issued := map[string]string{
		"R-user":   token(t, "alice", "user", time.Hour),
		"R-agency": token(t, "acme", "agency", time.Hour),
	}
	both := make(chan struct{})
	var arrived sync.WaitGroup
	arrived.Add(2)
	stub := &stubRefresher{fn: func(_ context.Context, r string) (string, error) {
		arrived.Done()
		<-both
		return issued[r], nil
	}}
	c := refresh.NewCoordinator(f.store, stub)

	var wg sync.WaitGroup
	var userRes, agencyRes refresh.Result
	wg.Add(2)
	go func() { defer wg.Done(); userRes = c.Resolve(ctx, namespace.User) }()
	go func() { defer wg.Done(); agencyRes = c.Resolve(ctx, namespace.Agency) }()
	arrived.Wait()
	close(both)
	wg.Wait()

	require.Equal(t, 2, stub.Calls())
	require.True(t, userRes.Granted)
	require.True(t, agencyRes.Granted)
	require.Equal(t, "alice", userRes.Claims.Username)
	require.Equal(t, "acme", agencyRes.Claims.Username)

	v, _ := f.store.Get(ctx, namespace.User, storage.FieldAccess)
	require.Equal(t, issued["R-user"], v)
	v, _ = f.store.Get(ctx, namespace.Agency, storage.FieldAccess)
	require.Equal(t, issued["R-agency"], v)
	v, _ = f.store.Get(ctx, namespace.Agency, storage.FieldRefresh)
	require.Equal(t, "R-agency", v)
}

func TestResolve_SessionReplacedDuringRefresh(t *testing.T) {
	ctx := context.Background()
	f := setup()
	require.NoError(t, f.store.SetSession(ctx, namespace.Agency, storage.Record{Access: token(t, "acme", "agency", -time.Minute), Refresh: "R-old"}, true))

	replacement := token(t, "acme-north", "agency", time.Hour)
	stub := &stubRefresher{fn: func(ctx context.Context, _ string) (string, error) {
		// Another login lands while the call is in flight.
		_ = f.store.SetSession(ctx, namespace.Agency, storage.Record{Access: replacement, Refresh: "R-new"}, true)
		return token(t, "acme", "agency", time.Hour), nil
	}}
	res := refresh.NewCoordinator(f.store, stub).Resolve(ctx, namespace.Agency)

	require.True(t, res.Granted)
	require.Equal(t, "acme-north", res.Claims.Username)
	v, _ := f.store.Get(ctx, namespace.Agency, storage.FieldAccess)
	require.Equal(t, replacement, v)
}

func TestResolve_CancelledCallerStillStoresToken(t *testing.T) {
	f := setup()
	require.NoError(t, f.store.SetSession(context.Background(), namespace.User, storage.Record{Access: token(t, "alice", "user", -time.Minute), Refresh: "R"}, true))

	release := make(chan struct{})
	done := make(chan struct{})
	fresh := token(t, "alice", "user", time.Hour)
	stub := &stubRefresher{fn: func(context.Context, string) (string, error) {
		defer close(done)
		<-release
		return fresh, nil
	}}
	c := refresh.NewCoordinator(f.store, stub)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for stub.Calls() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	res := c.Resolve(ctx, namespace.User)
	require.False(t, res.Granted)
	require.ErrorIs(t, res.Err, context.Canceled)

	close(release)
	<-done
	require.Eventually(t, func() bool {
		v, _ := f.store.Get(context.Background(), namespace.User, storage.FieldAccess)
		return v == fresh
	}, time.Second, time.Millisecond)
}

// hookBackend runs onGet after every successful read of key.
type hookBackend struct {
	*memory.Backend
	key   string
	onGet func()
}

func (h *hookBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := h.Backend.Get(ctx, key)
	if key == h.key && h.onGet != nil {
		h.onGet()
	}
	return v, ok, err
}

func TestResolve_SessionReplacedBetweenReads(t *testing.T) {
	ctx := context.Background()
	durable := &hookBackend{Backend: memory.New(), key: "refresh_user"}
	store := storage.NewStore(durable, memory.New())
	require.NoError(t, store.SetSession(ctx, namespace.User, storage.Record{Access: token(t, "alice", "user", -time.Minute), Refresh: "R-alice"}, true))

	bob := token(t, "bob", "user", time.Hour)
	var once sync.Once
	durable.onGet = func() {
		once.Do(func() {
			require.NoError(t, store.SetSession(ctx, namespace.User, storage.Record{Access: bob, Refresh: "R-bob"}, true))
		})
	}
	stub := &stubRefresher{fn: func(context.Context, string) (string, error) {
		return token(t, "alice", "user", time.Hour), nil
	}}

	res := refresh.NewCoordinator(store, stub).Resolve(ctx, namespace.User)

	require.True(t, res.Granted)
	require.Equal(t, "bob", res.Claims.Username)
	v, _ := store.Get(ctx, namespace.User, storage.FieldAccess)
	require.Equal(t, bob, v)
	v, _ = store.Get(ctx, namespace.User, storage.FieldRefresh)
	require.Equal(t, "R-bob", v)
}
