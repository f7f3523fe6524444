package guard

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-role-sessions/session"
)

// Mount is a guarded route while it is on screen. Each navigation starts
// Pending and only the latest navigation of a live mount may apply its decision.
type Mount struct {
	resolver session.Resolver
	policy   Policy

	mu      sync.Mutex
	alive   bool
	gen     uint64
	current Decision
}

// NewMount mounts a route guarded by policy.
func NewMount(resolver session.Resolver, policy Policy) *Mount {
	return &Mount{resolver: resolver, policy: policy, alive: true}
}

// Navigate evaluates a navigation to location. The returned bool is false
// when the transition was suppressed because the mount was torn down, a newer
// navigation started, or ctx was cancelled; nothing is applied in that case.
func (m *Mount) Navigate(ctx context.Context, location string) (Decision, bool) {
	m.mu.Lock()
	if !m.alive {
		m.mu.Unlock()
		return Decision{State: Pending}, false
	}
	m.gen++
	gen := m.gen
	m.current = Decision{State: Pending}
	m.mu.Unlock()

	eval := session.NewEvaluation(m.resolver)
	d := Evaluate(session.WithEvaluation(ctx, eval), eval, m.policy, location)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.alive || gen != m.gen || ctx.Err() != nil || d.State == Pending {
		return Decision{State: Pending}, false
	}
	m.current = d
	return d, true
}

// Current returns the applied decision.
func (m *Mount) Current() Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Unmount tears the route down. Evaluations still in flight are discarded.
func (m *Mount) Unmount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive = false
}
