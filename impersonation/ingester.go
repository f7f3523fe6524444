// Package impersonation takes over a session handed off through a URL, as
// when an administrator opens a customer's account.
package impersonation

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/jrsteele09/go-role-sessions/internal/metrics"
	"github.com/jrsteele09/go-role-sessions/internal/utils"
	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/jrsteele09/go-role-sessions/token/jwt"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPrefetchTimeout = 1500 * time.Millisecond

	// latePrefetchLimit bounds a profile fetch that outlived the redirect.
	latePrefetchLimit = 30 * time.Second
)

// Request is a parsed hand-off URL.
type Request struct {
	Access    string
	Refresh   string
	Namespace string // raw ns parameter
	Next      string
	Path      string
}

// ParseRequest reads the access, refresh, ns and next parameters and the path of u.
func ParseRequest(u *url.URL) Request {
	q := u.Query()
	return Request{
		Access:    q.Get("access"),
		Refresh:   q.Get("refresh"),
		Namespace: q.Get("ns"),
		Next:      q.Get("next"),
		Path:      u.Path,
	}
}

// ResolveNamespace picks the target namespace: the ns parameter, then the
// path prefix, then the role of the access token, then user.
func (r Request) ResolveNamespace() namespace.Namespace {
	if r.Namespace != "" {
		return namespace.FromAlias(r.Namespace)
	}
	if ns, ok := namespace.FromPath(r.Path); ok {
		return ns
	}
	if r.Access != "" {
		if claims, err := jwt.Decode(r.Access); err == nil && claims.Role != "" {
			return namespace.FromAlias(claims.Role)
		}
	}
	return namespace.User
}

// Redirect is next when it is a safe relative path, otherwise the dashboard of ns.
func (r Request) Redirect(ns namespace.Namespace) string {
	if r.Next != "" && utils.IsSafeRelativePath(r.Next) {
		return r.Next
	}
	return ns.DashboardPath()
}

// ProfileFetcher fetches the profile owning an access token.
type ProfileFetcher interface {
	Me(ctx context.Context, access string) (*storage.Profile, error)
}

// Result describes an ingested hand-off.
type Result struct {
	Namespace namespace.Namespace
	Redirect  string

	// Durable is false when the tokens had to go to tab-scoped storage.
	Durable bool

	// Profile is set when the prefetch finished before the redirect.
	Profile *storage.Profile
}

// Ingester writes handed-off tokens into their namespace.
type Ingester struct {
	store           *storage.Store
	fetcher         ProfileFetcher
	prefetchTimeout time.Duration

	wg sync.WaitGroup
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithPrefetchTimeout bounds how long Ingest waits for the profile.
func WithPrefetchTimeout(d time.Duration) Option {
	return func(i *Ingester) {
		i.prefetchTimeout = d
	}
}

// NewIngester creates an ingester.
func NewIngester(store *storage.Store, fetcher ProfileFetcher, opts ...Option) *Ingester {
	i := &Ingester{store: store, fetcher: fetcher, prefetchTimeout: DefaultPrefetchTimeout}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest stores the handed-off tokens, drops the cached identity of the
// namespace, purges legacy keys and prefetches the profile with the new
// access token. It returns once the profile arrived or the prefetch timeout
// passed; a profile arriving later is still cached unless the namespace has
// been rewritten in the meantime.
func (i *Ingester) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.Access == "" {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "access token is required")
	}
	ns := req.ResolveNamespace()
	rec := storage.Record{Access: req.Access, Refresh: req.Refresh}

	durable := true
	if err := i.store.SetSession(ctx, ns, rec, true); err != nil {
		log.Warn().Err(err).Str("namespace", ns.String()).Msg("durable storage unavailable, using tab-scoped storage")
		durable = false
		if err := i.store.SetSession(ctx, ns, rec, false); err != nil {
			return nil, errors.Wrapf(err, "storing handed-off %s session", ns)
		}
	}
	if err := i.store.ClearIdentity(ctx, ns); err != nil {
		log.Warn().Err(err).Str("namespace", ns.String()).Msg("clearing cached identity")
	}
	if err := i.store.PurgeLegacy(ctx); err != nil {
		log.Warn().Err(err).Msg("purging legacy session keys")
	}
	metrics.ImpersonationsTotal.WithLabelValues(ns.String()).Inc()

	res := &Result{Namespace: ns, Redirect: req.Redirect(ns), Durable: durable}
	res.Profile = i.prefetch(ctx, ns, req.Access)
	return res, nil
}

func (i *Ingester) prefetch(ctx context.Context, ns namespace.Namespace, access string) *storage.Profile {
	if i.fetcher == nil {
		return nil
	}
	version := i.store.Version(ns)
	done := make(chan *storage.Profile, 1)

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), latePrefetchLimit)
		defer cancel()

		p, err := i.fetcher.Me(bg, access)
		if err != nil {
			log.Warn().Err(err).Str("namespace", ns.String()).Msg("profile prefetch failed")
			done <- nil
			return
		}
		if err := i.store.SetProfileIfVersion(bg, ns, p, version); err != nil {
			log.Debug().Err(err).Str("namespace", ns.String()).Msg("discarding prefetched profile")
			done <- nil
			return
		}
		done <- p
	}()

	timer := time.NewTimer(i.prefetchTimeout)
	defer timer.Stop()
	select {
	case p := <-done:
		return p
	case <-timer.C:
		log.Info().Str("namespace", ns.String()).Dur("timeout", i.prefetchTimeout).Msg("redirecting before profile prefetch finished")
	case <-ctx.Done():
	}
	return nil
}

// Wait blocks until every background profile prefetch has finished.
func (i *Ingester) Wait() {
	i.wg.Wait()
}
