package server

import (
	"net/http"

	"github.com/jrsteele09/go-role-sessions/impersonation"
	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/rs/zerolog/log"
)

type impersonationResponse struct {
	Namespace string           `json:"namespace"`
	Redirect  string           `json:"redirect"`
	Durable   bool             `json:"durable"`
	Profile   *storage.Profile `json:"profile,omitempty"`
}

// ImpersonateHandler takes over the session handed off in the query string
// (GET /impersonate?access=...&refresh=...&ns=...&next=...).
func (s *Server) ImpersonateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := impersonation.ParseRequest(r.URL)
		b := s.browser(w, r)
		res, err := b.ingester.Ingest(r.Context(), req)
		if err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("impersonation hand-off rejected")
			if wantsJSON(r) {
				writeSessionError(w, err)
				return
			}
			redirectWithError(w, r, req.ResolveNamespace().LoginPath(), "This sign-in link is invalid or incomplete")
			return
		}
		b.unmountAll()

		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, impersonationResponse{
				Namespace: res.Namespace.String(),
				Redirect:  res.Redirect,
				Durable:   res.Durable,
				Profile:   res.Profile,
			})
			return
		}
		// Tokens must not linger in history or Referer headers.
		w.Header().Set("Referrer-Policy", "no-referrer")
		redirectSuccess(w, r, res.Redirect)
	}
}
