package server

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/rs/zerolog/log"
)

const healthPingTimeout = 2 * time.Second

// IndexHandler sends visitors to the customer login page.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, namespace.User.LoginPath(), http.StatusSeeOther)
	}
}

// HealthHandler reports whether durable storage is reachable.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := s.durable.(Pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				log.Warn().Err(err).Msg("health check: durable storage unreachable")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "storage": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tabs": s.browsers.Len()})
	}
}
