// Package guard decides whether a navigation to a protected route may render.
package guard

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jrsteele09/go-role-sessions/internal/metrics"
	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/jrsteele09/go-role-sessions/session"
	"github.com/jrsteele09/go-role-sessions/token/jwt"
	"github.com/rs/zerolog/log"
)

// State is the guard state of a navigation.
type State int

const (
	// Pending renders nothing.
	Pending State = iota
	Granted
	Denied
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Decision is the outcome of one guard evaluation.
type Decision struct {
	State State

	// Redirect is where a Denied navigation goes.
	Redirect string

	// Session is the resolved session of a Granted navigation.
	Session session.Resolved
}

// Renders reports whether protected content may be shown.
func (d Decision) Renders() bool {
	return d.State == Granted
}

// Policy is what a guard requires of a session.
type Policy interface {
	// Name labels the guard in logs and metrics.
	Name() string

	// Namespace is the namespace whose session the guard resolves.
	Namespace() namespace.Namespace

	// Authorized reports whether claims satisfy the guard.
	Authorized(claims *jwt.Claims) bool

	// LoginRedirect is where an unauthenticated navigation to attempted goes.
	LoginRedirect(attempted string) string
}

type roleGuard struct {
	ns      namespace.Namespace
	allowed map[string]bool
}

// RoleGuard requires a session in ns. With no allowed roles any claim that
// belongs to ns passes; otherwise the effective or raw role must be listed.
func RoleGuard(ns namespace.Namespace, allowed ...string) Policy {
	g := &roleGuard{ns: ns}
	if len(allowed) > 0 {
		g.allowed = make(map[string]bool, len(allowed))
		for _, r := range allowed {
			g.allowed[r] = true
		}
	}
	return g
}

func (g *roleGuard) Name() string                   { return "role:" + g.ns.String() }
func (g *roleGuard) Namespace() namespace.Namespace { return g.ns }

func (g *roleGuard) Authorized(c *jwt.Claims) bool {
	if c == nil {
		return false
	}
	if g.allowed == nil {
		return c.Namespace() == g.ns
	}
	return g.allowed[c.EffectiveRole()] || g.allowed[c.Role]
}

func (g *roleGuard) LoginRedirect(string) string {
	return g.ns.LoginPath()
}

type adminGuard struct{}

// AdminGuard requires an admin-namespace session whose claims carry is_staff or is_superuser.
func AdminGuard() Policy {
	return adminGuard{}
}

func (adminGuard) Name() string                   { return "admin" }
func (adminGuard) Namespace() namespace.Namespace { return namespace.Admin }

func (adminGuard) Authorized(c *jwt.Claims) bool {
	return c != nil && c.IsAdmin()
}

func (adminGuard) LoginRedirect(attempted string) string {
	if attempted == "" {
		return namespace.Admin.LoginPath()
	}
	return namespace.Admin.LoginPath() + "?next=" + url.QueryEscape(attempted)
}

// Evaluate resolves the policy's namespace and decides the navigation to
// attempted. A cancelled ctx yields Pending.
func Evaluate(ctx context.Context, resolver session.Resolver, p Policy, attempted string) Decision {
	res := resolver.Resolve(ctx, p.Namespace())
	if ctx.Err() != nil {
		return Decision{State: Pending}
	}

	var d Decision
	switch {
	case !res.Granted:
		d = Decision{State: Denied, Redirect: p.LoginRedirect(attempted)}
	case p.Authorized(res.Claims):
		d = Decision{State: Granted, Session: res}
	default:
		d = Decision{State: Denied, Redirect: selfHeal(res.Claims, p, attempted)}
		log.Debug().Str("guard", p.Name()).Str("role", res.Claims.EffectiveRole()).Str("redirect", d.Redirect).Msg("session not authorized for route")
	}

	metrics.GuardDecisionsTotal.WithLabelValues(p.Name(), d.State.String()).Inc()
	return d
}

// selfHeal sends an authenticated but unauthorized session to its own
// dashboard, or to the guard's login when it has no role or its own dashboard
// is the guarded namespace.
func selfHeal(c *jwt.Claims, p Policy, attempted string) string {
	if c.EffectiveRole() == "" && !c.IsAdmin() {
		return p.LoginRedirect(attempted)
	}
	own := c.Namespace()
	if own == p.Namespace() {
		return p.LoginRedirect(attempted)
	}
	return own.DashboardPath()
}
