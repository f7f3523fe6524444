// Package session answers "who is signed in to this namespace" for guards and handlers.
package session

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/jrsteele09/go-role-sessions/token/jwt"
	"github.com/jrsteele09/go-role-sessions/token/refresh"
)

// Resolved is the session of one namespace as seen by a single evaluation.
type Resolved struct {
	Namespace namespace.Namespace
	Granted   bool
	Claims    *jwt.Claims
	Access    string
	Profile   *storage.Profile

	// Err is why a refresh failed, if one did.
	Err error
}

// Role is the effective role of the session, empty when not granted.
func (r Resolved) Role() string {
	if !r.Granted || r.Claims == nil {
		return ""
	}
	return r.Claims.EffectiveRole()
}

// Resolver resolves namespaces. Implemented by *StoreResolver and *Evaluation.
type Resolver interface {
	Resolve(ctx context.Context, ns namespace.Namespace) Resolved
}

// StoreResolver resolves namespaces from a store through a refresh coordinator.
type StoreResolver struct {
	store       *storage.Store
	coordinator *refresh.Coordinator
}

var _ Resolver = (*StoreResolver)(nil)

// NewResolver creates a resolver.
func NewResolver(store *storage.Store, coordinator *refresh.Coordinator) *StoreResolver {
	return &StoreResolver{store: store, coordinator: coordinator}
}

// Resolve returns the session of ns. The profile is the cached one when it
// decodes, otherwise the minimal identity carried by the claims.
func (r *StoreResolver) Resolve(ctx context.Context, ns namespace.Namespace) Resolved {
	res := r.coordinator.Resolve(ctx, ns)
	out := Resolved{Namespace: ns, Granted: res.Granted, Claims: res.Claims, Access: res.Access, Err: res.Err}
	if !res.Granted {
		return out
	}
	if p, ok := r.store.Profile(ctx, ns); ok {
		out.Profile = p
	} else {
		out.Profile = MinimalProfile(res.Claims)
	}
	return out
}

// MinimalProfile is the identity derivable from claims alone.
func MinimalProfile(c *jwt.Claims) *storage.Profile {
	if c == nil {
		return nil
	}
	return &storage.Profile{
		Username: c.Username,
		FullName: c.FullName,
		Role:     c.EffectiveRole(),
		Category: c.Category,
	}
}

// Evaluation memoises one resolution per namespace, so every reader within a
// single guard evaluation sees the same session and at most one refresh call
// is made per namespace.
type Evaluation struct {
	resolver Resolver

	mu      sync.Mutex
	entries map[namespace.Namespace]*entry
}

type entry struct {
	once sync.Once
	res  Resolved
}

var _ Resolver = (*Evaluation)(nil)

// NewEvaluation starts an evaluation over resolver.
func NewEvaluation(resolver Resolver) *Evaluation {
	return &Evaluation{resolver: resolver, entries: make(map[namespace.Namespace]*entry)}
}

// Resolve resolves ns on first use and returns the memoised result afterwards.
func (e *Evaluation) Resolve(ctx context.Context, ns namespace.Namespace) Resolved {
	e.mu.Lock()
	en, ok := e.entries[ns]
	if !ok {
		en = &entry{}
		e.entries[ns] = en
	}
	e.mu.Unlock()

	en.once.Do(func() {
		en.res = e.resolver.Resolve(ctx, ns)
	})
	return en.res
}

type evaluationKey struct{}

// WithEvaluation attaches e to ctx.
func WithEvaluation(ctx context.Context, e *Evaluation) context.Context {
	return context.WithValue(ctx, evaluationKey{}, e)
}

// EvaluationFromContext returns the evaluation attached to ctx.
func EvaluationFromContext(ctx context.Context) (*Evaluation, bool) {
	e, ok := ctx.Value(evaluationKey{}).(*Evaluation)
	return e, ok
}

// FromContext resolves ns through the evaluation on ctx, falling back to fallback.
func FromContext(ctx context.Context, fallback Resolver, ns namespace.Namespace) Resolved {
	if e, ok := EvaluationFromContext(ctx); ok {
		return e.Resolve(ctx, ns)
	}
	return fallback.Resolve(ctx, ns)
}
