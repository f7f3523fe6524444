package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/jrsteele09/go-role-sessions/session"
	"github.com/jrsteele09/go-role-sessions/storage"
)

type dashboardResponse struct {
	Namespace   string           `json:"namespace"`
	Role        string           `json:"role"`
	Username    string           `json:"username"`
	IsStaff     bool             `json:"is_staff,omitempty"`
	IsSuperuser bool             `json:"is_superuser,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
	Profile     *storage.Profile `json:"profile,omitempty"`
}

// DashboardHandler renders the landing page of a granted session.
func (s *Server) DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := decisionFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "no_session", "route is not guarded")
			return
		}
		res := d.Session
		resp := dashboardResponse{
			Namespace:   res.Namespace.String(),
			Role:        res.Role(),
			Username:    res.Claims.Username,
			IsStaff:     res.Claims.IsStaff,
			IsSuperuser: res.Claims.IsSuperuser,
			Profile:     res.Profile,
		}
		if res.Claims.ExpiresAt != nil {
			exp := res.Claims.ExpiresAt.Time
			resp.ExpiresAt = &exp
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type sessionStatus struct {
	Namespace string `json:"namespace"`
	Granted   bool   `json:"granted"`
	Role      string `json:"role,omitempty"`
	Username  string `json:"username,omitempty"`
	Durable   bool   `json:"durable,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SessionsHandler reports the state of every namespace of the calling tab
// (GET /api/sessions). Each namespace is resolved at most once per request.
func (s *Server) SessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := s.browser(w, r)
		eval := session.NewEvaluation(b.resolver)
		ctx := session.WithEvaluation(r.Context(), eval)

		statuses := make([]sessionStatus, 0, len(namespace.All))
		for _, ns := range namespace.All {
			res := session.FromContext(ctx, b.resolver, ns)
			st := sessionStatus{Namespace: ns.String(), Granted: res.Granted}
			if res.Granted {
				st.Role = res.Role()
				st.Username = res.Claims.Username
				kind, _ := b.store.KindOf(ctx, ns, storage.FieldAccess)
				st.Durable = kind == storage.Durable
			}
			if res.Err != nil {
				st.Error = res.Err.Error()
			}
			statuses = append(statuses, st)
		}
		if r.Context().Err() != nil {
			return
		}
		writeJSON(w, http.StatusOK, statuses)
	}
}
