package backendfake

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-role-sessions/backend"
	"github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/rs/zerolog/log"
)

// Handler serves the fake over the same HTTP contract backend.HTTPClient speaks.
func (f *FakeBackend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+backend.LoginPath, f.handleLogin)
	mux.HandleFunc("POST "+backend.RefreshPath, f.handleRefresh)
	mux.HandleFunc("GET "+backend.MePath, f.handleMe)
	mux.HandleFunc("GET "+backend.HierarchyPath, f.handleHierarchy)
	mux.HandleFunc("GET "+backend.JWKSPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, f.JWKS())
	})
	return mux
}

func (f *FakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds backend.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, backend.LoginFailure{Detail: "invalid request body"})
		return
	}

	pair, err := f.Login(r.Context(), creds)
	var ambiguous *errors.AmbiguousIdentityError
	switch {
	case errors.As(err, &ambiguous):
		writeJSON(w, http.StatusBadRequest, backend.LoginFailure{
			Detail:           "multiple accounts found",
			MultipleAccounts: ambiguous.Candidates,
		})
	case errors.Is(err, errors.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, backend.LoginFailure{Detail: "no active account found with the given credentials"})
	case err != nil:
		log.Err(err).Msg("fake login failed")
		writeJSON(w, http.StatusInternalServerError, backend.LoginFailure{Detail: "internal error"})
	default:
		writeJSON(w, http.StatusOK, pair)
	}
}

func (f *FakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "refresh is required"})
		return
	}

	access, err := f.Refresh(r.Context(), req.Refresh)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token is invalid or expired"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (f *FakeBackend) handleMe(w http.ResponseWriter, r *http.Request) {
	bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || bearer == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "authentication credentials were not provided"})
		return
	}

	profile, err := f.Me(r.Context(), bearer)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid token"})
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (f *FakeBackend) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	reg, err := f.Hierarchy(r.Context(), r.URL.Query().Get("username"))
	switch {
	case errors.Is(err, errors.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "internal error"})
	default:
		writeJSON(w, http.StatusOK, reg)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("writing fake backend response")
	}
}
