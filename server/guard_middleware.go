package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-role-sessions/guard"
	"github.com/rs/zerolog/log"
)

type contextKey int

const decisionKey contextKey = iota

// RequireSession guards a route with policy. Denied navigations are redirected;
// navigations that were cancelled or superseded by a newer one from the same
// tab write nothing.
func (s *Server) RequireSession(policy guard.Policy) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			b := s.browser(w, r)
			d, applied := b.mount(policy).Navigate(r.Context(), r.URL.RequestURI())
			if !applied {
				log.Debug().Str("guard", policy.Name()).Str("path", r.URL.Path).Msg("navigation superseded")
				return
			}
			if d.State == guard.Denied {
				redirectSuccess(w, r, d.Redirect)
				return
			}
			next(w, r.WithContext(context.WithValue(r.Context(), decisionKey, d)))
		}
	}
}

// decisionFromContext returns the granted decision stored by RequireSession.
func decisionFromContext(ctx context.Context) (guard.Decision, bool) {
	d, ok := ctx.Value(decisionKey).(guard.Decision)
	return d, ok
}
