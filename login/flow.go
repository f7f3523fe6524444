// Package login signs a user in to one namespace.
package login

import (
	"context"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-role-sessions/backend"
	"github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/jrsteele09/go-role-sessions/internal/metrics"
	"github.com/jrsteele09/go-role-sessions/internal/utils"
	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/jrsteele09/go-role-sessions/token/jwt"
	"github.com/rs/zerolog/log"
)

// Request is a submitted login form.
type Request struct {
	Username string
	Password string

	// Role is the namespace the user is signing in to.
	Role string

	// Remember keeps the session in durable storage.
	Remember bool

	// Next is an optional same-origin path to land on instead of the dashboard.
	Next string
}

// Result describes a completed login.
type Result struct {
	Namespace namespace.Namespace
	Redirect  string
	Claims    *jwt.Claims

	// Profile is nil when the post-login profile fetch failed.
	Profile *storage.Profile
}

// Flow performs logins against a backend and records the session in a store.
type Flow struct {
	store   *storage.Store
	client  backend.Client
	decoder *jwt.Decoder
}

// Option configures a Flow.
type Option func(*Flow)

// WithDecoder sets the decoder used for issued tokens.
func WithDecoder(d *jwt.Decoder) Option {
	return func(f *Flow) {
		f.decoder = d
	}
}

// NewFlow creates a login flow.
func NewFlow(store *storage.Store, client backend.Client, opts ...Option) *Flow {
	f := &Flow{store: store, client: client, decoder: jwt.NewDecoder()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RegisteredNamespace is the namespace reg belongs to.
func RegisteredNamespace(reg *backend.Registration) namespace.Namespace {
	if reg.IsStaff || strings.EqualFold(strings.TrimSpace(reg.Role), string(namespace.Admin)) {
		return namespace.Admin
	}
	return namespace.FromAlias(utils.FirstNonEmpty(reg.Category, reg.Role))
}

// Login signs req.Username in to the namespace named by req.Role.
//
// The registered role is looked up first; a username registered under another
// namespace fails with a RoleMismatchError and the password is never sent. A
// failed lookup is ignored and the backend decides. If ctx is cancelled once
// the backend has answered, nothing is stored.
func (f *Flow) Login(ctx context.Context, req Request) (*Result, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "username and password are required")
	}
	attempted, ok := namespace.Parse(req.Role)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "unknown role %q", req.Role)
	}

	if err := f.checkRegisteredRole(ctx, username, attempted); err != nil {
		metrics.LoginTotal.WithLabelValues(attempted.String(), "role_mismatch").Inc()
		return nil, err
	}

	pair, err := f.client.Login(ctx, backend.Credentials{Username: username, Password: req.Password, Role: attempted.String()})
	if err != nil {
		metrics.LoginTotal.WithLabelValues(attempted.String(), "rejected").Inc()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims, err := f.decoder.Decode(ctx, pair.Access)
	if err != nil {
		metrics.LoginTotal.WithLabelValues(attempted.String(), "bad_token").Inc()
		return nil, fmt.Errorf("decoding issued token: %w", err)
	}

	ns := claims.Namespace()
	role := claims.EffectiveRole()
	if ns == namespace.Admin && role == "" {
		role = namespace.Admin.String()
	}
	rec := storage.Record{Access: pair.Access, Refresh: pair.Refresh, Role: role}
	if err := f.store.SetSession(ctx, ns, rec, req.Remember); err != nil {
		return nil, fmt.Errorf("storing %s session: %w", ns, err)
	}
	version := f.store.Version(ns)

	if err := f.store.PurgeLegacy(ctx); err != nil {
		log.Warn().Err(err).Msg("purging legacy session keys")
	}

	// The profile is fetched with the token just issued, not whatever the
	// namespace resolves to.
	profile, err := f.client.Me(ctx, pair.Access)
	if err != nil {
		log.Warn().Err(err).Str("namespace", ns.String()).Msg("fetching profile after login")
		profile = nil
	} else if err := f.store.SetProfileIfVersion(ctx, ns, profile, version); err != nil {
		log.Warn().Err(err).Str("namespace", ns.String()).Msg("caching profile after login")
	}

	redirect := ns.DashboardPath()
	if req.Next != "" && utils.IsSafeRelativePath(req.Next) {
		redirect = req.Next
	}

	metrics.LoginTotal.WithLabelValues(attempted.String(), "ok").Inc()
	log.Info().Str("namespace", ns.String()).Str("username", claims.Username).Bool("remember", req.Remember).Msg("signed in")
	return &Result{Namespace: ns, Redirect: redirect, Claims: claims, Profile: profile}, nil
}

func (f *Flow) checkRegisteredRole(ctx context.Context, username string, attempted namespace.Namespace) error {
	reg, err := f.client.Hierarchy(ctx, username)
	if err != nil {
		log.Debug().Err(err).Str("username", username).Msg("registered role lookup failed, leaving it to the backend")
		return nil
	}
	if reg == nil || (strings.TrimSpace(reg.Role) == "" && strings.TrimSpace(reg.Category) == "" && !reg.IsStaff) {
		return nil
	}
	if registered := RegisteredNamespace(reg); registered != attempted {
		return &errors.RoleMismatchError{Registered: registered.String(), Attempted: attempted.String()}
	}
	return nil
}

// Logout removes the session of ns.
func (f *Flow) Logout(ctx context.Context, ns namespace.Namespace) error {
	if err := f.store.Clear(ctx, ns); err != nil {
		return fmt.Errorf("clearing %s session: %w", ns, err)
	}
	log.Info().Str("namespace", ns.String()).Msg("signed out")
	return nil
}
