package backend_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-role-sessions/backend"
	"github.com/jrsteele09/go-role-sessions/backend/backendfake"
	apperrors "github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/jrsteele09/go-role-sessions/token/jwt"
	"github.com/stretchr/testify/require"
)

func newFakeServer(t *testing.T) (*backendfake.FakeBackend, *backend.HTTPClient) {
	t.Helper()
	f, err := backendfake.New()
	require.NoError(t, err)
	require.NoError(t, f.RegisterAll(backendfake.DemoAccounts...))

	srv := httptest.NewServer(f.Handler())
	t.Cleanup(srv.Close)
	return f, backend.NewHTTPClient(srv.URL+"/", backend.WithHTTPClient(srv.Client()), backend.WithTimeout(5*time.Second))
}

func stubServer(t *testing.T, h http.HandlerFunc) *backend.HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return backend.NewHTTPClient(srv.URL)
}

func TestHTTPClient_Login(t *testing.T) {
	ctx := context.Background()
	_, client := newFakeServer(t)

	t.Run("success", func(t *testing.T) {
		pair, err := client.Login(ctx, backend.Credentials{Username: "eve", Password: backendfake.DemoPassword, Role: "employee"})
		require.NoError(t, err)
		claims, err := jwt.Decode(pair.Access)
		require.NoError(t, err)
		require.Equal(t, "eve", claims.Username)
		require.NotEmpty(t, pair.Refresh)
	})

	t.Run("rejected credentials carry the detail", func(t *testing.T) {
		_, err := client.Login(ctx, backend.Credentials{Username: "eve", Password: "wrong"})
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		require.Contains(t, err.Error(), "no active account")
	})

	t.Run("multiple accounts", func(t *testing.T) {
		_, err := client.Login(ctx, backend.Credentials{Username: "5550100", Password: backendfake.DemoPassword})
		var ambiguous *apperrors.AmbiguousIdentityError
		require.ErrorAs(t, err, &ambiguous)
		require.ElementsMatch(t, []string{"acme", "acme-north"}, ambiguous.Candidates)
		require.ErrorIs(t, err, apperrors.ErrAmbiguousIdentity)
	})

	t.Run("server error is not invalid credentials", func(t *testing.T) {
		c := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := c.Login(ctx, backend.Credentials{Username: "eve", Password: "x"})
		require.Error(t, err)
		require.NotErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})
}

func TestHTTPClient_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f, client := newFakeServer(t)
		pair, err := f.Issue("alice")
		require.NoError(t, err)

		access, err := client.Refresh(ctx, pair.Refresh)
		require.NoError(t, err)
		claims, err := jwt.Decode(access)
		require.NoError(t, err)
		require.Equal(t, "alice", claims.Username)
		require.Equal(t, 1, f.Calls(backendfake.EndpointRefresh))
	})

	failures := map[string]http.HandlerFunc{
		"non-2xx": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
		"missing access field": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"detail":"ok"}`))
		},
		"not json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, h := range failures {
		t.Run(name, func(t *testing.T) {
			_, err := stubServer(t, h).Refresh(ctx, "R")
			require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
		})
	}

	t.Run("transport failure", func(t *testing.T) {
		client := backend.NewHTTPClient("http://127.0.0.1:1")
		_, err := client.Refresh(ctx, "R")
		require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	})
}

func TestHTTPClient_Me(t *testing.T) {
	ctx := context.Background()

	t.Run("sends the explicit bearer token", func(t *testing.T) {
		var got string
		client := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`{"username":"acme","pincode":"110001"}`))
		})
		profile, err := client.Me(ctx, "just-issued")
		require.NoError(t, err)
		require.Equal(t, "Bearer just-issued", got)
		require.Equal(t, "110001", profile.Pincode)
	})

	t.Run("against the fake", func(t *testing.T) {
		f, client := newFakeServer(t)
		pair, err := f.Issue("acme")
		require.NoError(t, err)
		profile, err := client.Me(ctx, pair.Access)
		require.NoError(t, err)
		require.Equal(t, "Acme Agency", profile.FullName)

		_, err = client.Me(ctx, "garbage")
		require.ErrorIs(t, err, apperrors.ErrProfilePrefetchFailed)
	})
}

func TestHTTPClient_Hierarchy(t *testing.T) {
	ctx := context.Background()
	_, client := newFakeServer(t)

	reg, err := client.Hierarchy(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "agency", reg.Role)
	require.Equal(t, "agency", reg.Category)

	_, err = client.Hierarchy(ctx, "nobody")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
