package impersonation_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-role-sessions/impersonation"
	apperrors "github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/jrsteele09/go-role-sessions/storage/memory"
	"github.com/jrsteele09/go-role-sessions/token/jwt"
	"github.com/stretchr/testify/require"
)

// stubFetcher records the token it was called with and the stored identity
// of the namespace at that moment.
type stubFetcher struct {
	store *storage.Store
	ns    namespace.Namespace

	mu           sync.Mutex
	bearer       string
	roleAtFetch  bool
	cachedAtCall bool

	release chan struct{}
	err     error
	profile *storage.Profile
}

func (s *stubFetcher) Me(ctx context.Context, access string) (*storage.Profile, error) {
	s.mu.Lock()
	s.bearer = access
	if s.store != nil {
		_, s.roleAtFetch = s.store.Get(ctx, s.ns, storage.FieldRole)
		_, s.cachedAtCall = s.store.Get(ctx, s.ns, storage.FieldProfile)
	}
	s.mu.Unlock()

	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.profile, nil
}

func parse(t *testing.T, raw string) impersonation.Request {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return impersonation.ParseRequest(u)
}

func accessWithRole(t *testing.T, role string) string {
	t.Helper()
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwt.Claims{Role: role}).SignedString([]byte("k"))
	require.NoError(t, err)
	return url.QueryEscape(signed)
}

func TestResolveNamespace(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want namespace.Namespace
	}{
		{"ns alias", "/impersonate?access=A&ns=agency_owner", namespace.Agency},
		{"ns employee", "/impersonate?access=A&ns=employee", namespace.Employee},
		{"unknown ns falls back to user", "/impersonate?access=A&ns=admin", namespace.User},
		{"ns beats path", "/agency/impersonate?access=A&ns=employee", namespace.Employee},
		{"path prefix", "/agency/impersonate?access=A", namespace.Agency},
		{"employee path prefix", "/employee/impersonate?access=A", namespace.Employee},
		{"path beats token", "/agency/impersonate?access=" + accessWithRole(t, "employee"), namespace.Agency},
		{"token role", "/impersonate?access=" + accessWithRole(t, "employee"), namespace.Employee},
		{"undecodable token", "/impersonate?access=A", namespace.User},
		{"no hints", "/impersonate", namespace.User},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, parse(t, tt.url).ResolveNamespace())
		})
	}
}

func TestRedirect(t *testing.T) {
	require.Equal(t, "/agency/dashboard", parse(t, "/impersonate?next=%2Fagency%2Fdashboard").Redirect(namespace.Agency))
	require.Equal(t, "/employee/dashboard", parse(t, "/impersonate?next=https://evil.example.com").Redirect(namespace.Employee))
	require.Equal(t, "/dashboard", parse(t, "/impersonate?next=//evil.example.com/x").Redirect(namespace.User))
	require.Equal(t, "/dashboard", parse(t, "/impersonate").Redirect(namespace.User))
}

func TestIngest_AgencyHandOff(t *testing.T) {
	ctx := context.Background()
	durable, tab := memory.New(), memory.New()
	store := storage.NewStore(durable, tab)

	require.NoError(t, store.SetSession(ctx, namespace.Agency, storage.Record{
		Access: "old", Refresh: "old-r", Role: "agency",
		Profile: &storage.Profile{Username: "previous"},
	}, false))
	require.NoError(t, tab.Set(ctx, "token", "legacy"))
	require.NoError(t, store.SetSession(ctx, namespace.User, storage.Record{Access: "U", Refresh: "UR"}, true))

	fetcher := &stubFetcher{store: store, ns: namespace.Agency, profile: &storage.Profile{Username: "acme"}}
	ing := impersonation.NewIngester(store, fetcher)

	res, err := ing.Ingest(ctx, parse(t, "/impersonate?access=A&refresh=R&ns=agency&next=/agency/dashboard"))
	require.NoError(t, err)

	require.Equal(t, namespace.Agency, res.Namespace)
	require.Equal(t, "/agency/dashboard", res.Redirect)
	require.True(t, res.Durable)
	require.Equal(t, "acme", res.Profile.Username)

	v, _, _ := durable.Get(ctx, "token_agency")
	require.Equal(t, "A", v)
	v, _, _ = durable.Get(ctx, "refresh_agency")
	require.Equal(t, "R", v)

	require.Equal(t, "A", fetcher.bearer)
	require.False(t, fetcher.roleAtFetch, "role_agency must be cleared before the prefetch")
	require.False(t, fetcher.cachedAtCall, "user_agency must be cleared before the prefetch")

	_, ok, _ := tab.Get(ctx, "token")
	require.False(t, ok)
	_, ok, _ = tab.Get(ctx, "token_agency")
	require.False(t, ok)

	v, _ = store.Get(ctx, namespace.User, storage.FieldAccess)
	require.Equal(t, "U", v)
}

type failingBackend struct {
	*memory.Backend
}

func (failingBackend) Set(context.Context, string, string) error {
	return errors.New("quota exceeded")
}

func TestIngest_FallsBackToTabScoped(t *testing.T) {
	ctx := context.Background()
	tab := memory.New()
	store := storage.NewStore(failingBackend{memory.New()}, tab)

	res, err := impersonation.NewIngester(store, &stubFetcher{err: errors.New("down")}).
		Ingest(ctx, parse(t, "/employee/impersonate?access=A&refresh=R"))
	require.NoError(t, err)
	require.False(t, res.Durable)
	require.Nil(t, res.Profile)
	require.Equal(t, "/employee/dashboard", res.Redirect)

	v, _, _ := tab.Get(ctx, "token_employee")
	require.Equal(t, "A", v)
}

func TestIngest_PrefetchTimeout(t *testing.T) {
	ctx := context.Background()

	t.Run("late profile is still cached", func(t *testing.T) {
		store := storage.NewStore(memory.New(), memory.New())
		fetcher := &stubFetcher{release: make(chan struct{}), profile: &storage.Profile{Username: "late"}}
		ing := impersonation.NewIngester(store, fetcher, impersonation.WithPrefetchTimeout(10*time.Millisecond))

		start := time.Now()
		res, err := ing.Ingest(ctx, parse(t, "/impersonate?access=A&refresh=R"))
		require.NoError(t, err)
		require.Less(t, time.Since(start), time.Second)
		require.Nil(t, res.Profile)
		require.Equal(t, "/dashboard", res.Redirect)

		close(fetcher.release)
		ing.Wait()
		p, ok := store.Profile(ctx, namespace.User)
		require.True(t, ok)
		require.Equal(t, "late", p.Username)
	})

	t.Run("late profile is dropped after the namespace is rewritten", func(t *testing.T) {
		store := storage.NewStore(memory.New(), memory.New())
		fetcher := &stubFetcher{release: make(chan struct{}), profile: &storage.Profile{Username: "late"}}
		ing := impersonation.NewIngester(store, fetcher, impersonation.WithPrefetchTimeout(10*time.Millisecond))

		_, err := ing.Ingest(ctx, parse(t, "/impersonate?access=A&refresh=R"))
		require.NoError(t, err)
		require.NoError(t, store.SetSession(ctx, namespace.User, storage.Record{Access: "B", Refresh: "RB"}, true))

		close(fetcher.release)
		ing.Wait()
		_, ok := store.Profile(ctx, namespace.User)
		require.False(t, ok)
	})
}

func TestIngest_RequiresAccessToken(t *testing.T) {
	store := storage.NewStore(memory.New(), memory.New())
	_, err := impersonation.NewIngester(store, nil).Ingest(context.Background(), parse(t, "/impersonate?refresh=R"))
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}
