// Package metrics defines the Prometheus metrics of the session subsystem.
//
// Metrics are registered on the default registry and served by the shell's
// /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcomes.
const (
	OutcomeCached    = "cached"    // access token still usable, no network call
	OutcomeRefreshed = "refreshed" // refresh call succeeded
	OutcomeShared    = "shared"    // joined a refresh already in flight
	OutcomeNoRefresh = "no_refresh_token"
	OutcomeFailed    = "failed"
	OutcomeStale     = "stale" // namespace rewritten during the call
)

var (
	// RefreshTotal counts session resolutions by namespace and outcome.
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_refresh_total",
			Help: "Session resolutions by namespace and outcome.",
		},
		[]string{"namespace", "outcome"},
	)

	// GuardDecisionsTotal counts guard transitions by guard and resulting state.
	GuardDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_guard_decisions_total",
			Help: "Route guard decisions by guard and state.",
		},
		[]string{"guard", "state"},
	)

	// LoginTotal counts login attempts by attempted namespace and result.
	LoginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_login_total",
			Help: "Login attempts by namespace and result.",
		},
		[]string{"namespace", "result"},
	)

	// ImpersonationsTotal counts ingested impersonation hand-offs by namespace.
	ImpersonationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_impersonations_total",
			Help: "Impersonation hand-offs ingested by namespace.",
		},
		[]string{"namespace"},
	)
)

func init() {
	prometheus.MustRegister(RefreshTotal, GuardDecisionsTotal, LoginTotal, ImpersonationsTotal)
}
