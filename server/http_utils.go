package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/rs/zerolog/log"
)

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	fullPath := path + "?error=" + url.QueryEscape(errorMsg)
	redirectSuccess(w, r, fullPath)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json" || r.Header.Get("Content-Type") == "application/json"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("writing json response")
	}
}

type errorResponse struct {
	Error      string   `json:"error"`
	Detail     string   `json:"detail"`
	Registered string   `json:"registered_role,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{Error: code, Detail: detail})
}

// errorStatus maps a session subsystem error onto an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errors.ErrRoleMismatch):
		return http.StatusConflict, "role_mismatch"
	case errors.Is(err, errors.ErrAmbiguousIdentity):
		return http.StatusConflict, "multiple_accounts"
	case errors.Is(err, errors.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, errors.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	}
	return http.StatusBadGateway, "backend_unavailable"
}

func writeSessionError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	resp := errorResponse{Error: code, Detail: err.Error()}
	var mismatch *errors.RoleMismatchError
	if errors.As(err, &mismatch) {
		resp.Registered = mismatch.Registered
	}
	var ambiguous *errors.AmbiguousIdentityError
	if errors.As(err, &ambiguous) {
		resp.Candidates = ambiguous.Candidates
	}
	writeJSON(w, status, resp)
}
