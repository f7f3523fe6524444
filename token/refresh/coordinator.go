// Package refresh turns a namespace's stored tokens into a usable access token,
// exchanging the refresh token with the backend at most once per resolution.
package refresh

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/jrsteele09/go-role-sessions/internal/metrics"
	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/jrsteele09/go-role-sessions/token/jwt"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refresh string) (string, error)
}

// Result is the outcome of resolving one namespace.
type Result struct {
	Granted bool
	Claims  *jwt.Claims
	Access  string

	// Refreshed is set when the access token came from a refresh call.
	Refreshed bool

	// Err explains a denial caused by a failed refresh. It is nil when the
	// namespace simply has no session.
	Err error
}

func denied(err error) Result {
	return Result{Err: err}
}

// Coordinator resolves namespaces against a Store.
type Coordinator struct {
	store     *storage.Store
	refresher Refresher
	decoder   *jwt.Decoder
	group     singleflight.Group
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDecoder sets the decoder used for stored and refreshed tokens.
func WithDecoder(d *jwt.Decoder) Option {
	return func(c *Coordinator) {
		c.decoder = d
	}
}

// NewCoordinator creates a coordinator over store that refreshes through refresher.
func NewCoordinator(store *storage.Store, refresher Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		refresher: refresher,
		decoder:   jwt.NewDecoder(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns Granted with the claims of a usable access token for ns.
//
// A stored, unexpired access token is returned without I/O. Otherwise the
// refresh token, if any, is exchanged once; any failure is a denial and the
// stored session is left untouched. Concurrent calls for the same namespace
// and refresh token share one backend call.
func (c *Coordinator) Resolve(ctx context.Context, ns namespace.Namespace) Result {
	// Read before any key so a rewrite between the reads below is caught.
	version := c.store.Version(ns)

	if access, ok := c.store.Get(ctx, ns, storage.FieldAccess); ok {
		claims, err := c.decoder.Decode(ctx, access)
		switch {
		case err != nil:
			log.Debug().Err(err).Str("namespace", ns.String()).Msg("stored access token is unreadable")
		case claims.Usable():
			metrics.RefreshTotal.WithLabelValues(ns.String(), metrics.OutcomeCached).Inc()
			return Result{Granted: true, Claims: claims, Access: access}
		}
	}

	refreshToken, ok := c.store.Get(ctx, ns, storage.FieldRefresh)
	if !ok {
		metrics.RefreshTotal.WithLabelValues(ns.String(), metrics.OutcomeNoRefresh).Inc()
		return denied(nil)
	}

	ch := c.group.DoChan(ns.String()+":"+refreshToken, func() (any, error) {
		// The exchange outlives a cancelled caller so a consumed refresh
		// token is never thrown away.
		return c.exchange(context.WithoutCancel(ctx), ns, refreshToken, version)
	})

	select {
	case <-ctx.Done():
		return denied(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			metrics.RefreshTotal.WithLabelValues(ns.String(), metrics.OutcomeFailed).Inc()
			log.Info().Err(res.Err).Str("namespace", ns.String()).Msg("session refresh failed")
			return denied(res.Err)
		}
		out := res.Val.(Result)
		if res.Shared {
			metrics.RefreshTotal.WithLabelValues(ns.String(), metrics.OutcomeShared).Inc()
		}
		return out
	}
}

func (c *Coordinator) exchange(ctx context.Context, ns namespace.Namespace, refreshToken string, version uint64) (Result, error) {
	access, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		if !errors.Is(err, errors.ErrRefreshFailed) {
			err = fmt.Errorf("%w: %w", errors.ErrRefreshFailed, err)
		}
		return Result{}, err
	}

	claims, err := c.decoder.Decode(ctx, access)
	if err != nil {
		return Result{}, fmt.Errorf("%w: refreshed token: %w", errors.ErrRefreshFailed, err)
	}

	err = c.store.SetAccessIfVersion(ctx, ns, access, version)
	switch {
	case errors.Is(err, errors.ErrStaleWrite):
		return c.afterStaleWrite(ctx, ns)
	case err != nil:
		log.Warn().Err(err).Str("namespace", ns.String()).Msg("could not store refreshed access token")
	}

	metrics.RefreshTotal.WithLabelValues(ns.String(), metrics.OutcomeRefreshed).Inc()
	return Result{Granted: true, Claims: claims, Access: access, Refreshed: true}, nil
}

// afterStaleWrite resolves ns from whatever was written while the refresh
// call was in flight, without another network call.
func (c *Coordinator) afterStaleWrite(ctx context.Context, ns namespace.Namespace) (Result, error) {
	metrics.RefreshTotal.WithLabelValues(ns.String(), metrics.OutcomeStale).Inc()

	access, ok := c.store.Get(ctx, ns, storage.FieldAccess)
	if !ok {
		return Result{}, fmt.Errorf("%w: session was cleared during refresh", errors.ErrRefreshFailed)
	}
	claims, err := c.decoder.Decode(ctx, access)
	if err != nil || !claims.Usable() {
		return Result{}, fmt.Errorf("%w: session was replaced during refresh", errors.ErrRefreshFailed)
	}
	return Result{Granted: true, Claims: claims, Access: access}, nil
}
