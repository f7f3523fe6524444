package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/rs/zerolog/log"
)

// Store is the namespaced session store over a durable and a tab-scoped backend.
//
// Every operation only touches the keys of the namespace it was given.
// Store serialises its own writers and keeps a per-namespace write counter so
// a caller can detect that a namespace was rewritten while it was waiting on
// the network. The counter is local to this Store: other processes sharing
// the same durable backend are not seen and remain last-write-wins.
type Store struct {
	backends [2]Backend // indexed by Kind

	mu       sync.Mutex
	versions map[namespace.Namespace]uint64
}

// NewStore creates a store that reads durable storage first and tab-scoped storage second.
func NewStore(durable, tabScoped Backend) *Store {
	return &Store{
		backends: [2]Backend{Durable: durable, TabScoped: tabScoped},
		versions: make(map[namespace.Namespace]uint64),
	}
}

// Get returns the value of field for ns, checking durable storage before
// tab-scoped storage. Read errors are logged and treated as absent.
func (s *Store) Get(ctx context.Context, ns namespace.Namespace, field Field) (string, bool) {
	v, _, ok := s.lookup(ctx, Key(ns, field))
	return v, ok
}

// KindOf reports which backend currently holds field for ns.
func (s *Store) KindOf(ctx context.Context, ns namespace.Namespace, field Field) (Kind, bool) {
	_, k, ok := s.lookup(ctx, Key(ns, field))
	return k, ok
}

func (s *Store) lookup(ctx context.Context, key string) (string, Kind, bool) {
	for _, k := range []Kind{Durable, TabScoped} {
		v, ok, err := s.backends[k].Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Stringer("kind", k).Msg("storage read failed")
			continue
		}
		if ok && v != "" {
			return v, k, true
		}
	}
	return "", Durable, false
}

// Version returns the write counter of ns.
func (s *Store) Version(ns namespace.Namespace) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[ns]
}

// SetAccess stores a new access token next to the refresh token of ns, so a
// session kept in durable storage never gets its access token written to
// tab-scoped storage. Without a refresh token the access token goes to durable storage.
func (s *Store) SetAccess(ctx context.Context, ns namespace.Namespace, access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setAccessLocked(ctx, ns, access)
}

// SetAccessIfVersion is SetAccess guarded by the namespace write counter. It
// returns errors.ErrStaleWrite when ns was rewritten after version was read.
func (s *Store) SetAccessIfVersion(ctx context.Context, ns namespace.Namespace, access string, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[ns] != version {
		return fmt.Errorf("setting access token for %s: %w", ns, errors.ErrStaleWrite)
	}
	return s.setAccessLocked(ctx, ns, access)
}

func (s *Store) setAccessLocked(ctx context.Context, ns namespace.Namespace, access string) error {
	kind := s.homeKind(ctx, ns)
	key := Key(ns, FieldAccess)
	if err := s.backends[kind].Set(ctx, key, access); err != nil {
		return fmt.Errorf("writing %s to %s storage: %w", key, kind, err)
	}
	s.versions[ns]++
	return nil
}

// homeKind is the backend holding the refresh token of ns, durable if none does.
func (s *Store) homeKind(ctx context.Context, ns namespace.Namespace) Kind {
	if k, ok := s.KindOf(ctx, ns, FieldRefresh); ok {
		return k
	}
	return Durable
}

// SetSession replaces the whole session of ns in the chosen backend and removes
// the same fields from the other backend. Absent fields in rec are deleted.
// If a write fails the session fields of the target backend are removed again
// so no half-written session is left behind.
func (s *Store) SetSession(ctx context.Context, ns namespace.Namespace, rec Record, durable bool) error {
	values, err := rec.values()
	if err != nil {
		return err
	}

	target, other := TabScoped, Durable
	if durable {
		target, other = Durable, TabScoped
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[ns]++

	dst := s.backends[target]
	for _, f := range SessionFields {
		key := Key(ns, f)
		if v := values[f]; v != "" {
			err = dst.Set(ctx, key, v)
		} else {
			err = dst.Delete(ctx, key)
		}
		if err != nil {
			if rbErr := deleteFields(ctx, dst, ns, SessionFields); rbErr != nil {
				log.Warn().Err(rbErr).Str("namespace", ns.String()).Stringer("kind", target).Msg("rolling back partial session write failed")
			}
			return fmt.Errorf("writing %s to %s storage: %w", key, target, err)
		}
	}

	if err := deleteFields(ctx, s.backends[other], ns, SessionFields); err != nil {
		log.Warn().Err(err).Str("namespace", ns.String()).Stringer("kind", other).Msg("purging duplicate session fields failed")
	}
	return nil
}

// Clear removes every session field of ns from both backends.
func (s *Store) Clear(ctx context.Context, ns namespace.Namespace) error {
	return s.deleteFromBoth(ctx, ns, SessionFields)
}

// ClearIdentity removes the cached role and profile of ns from both backends,
// leaving the tokens in place.
func (s *Store) ClearIdentity(ctx context.Context, ns namespace.Namespace) error {
	return s.deleteFromBoth(ctx, ns, []Field{FieldRole, FieldProfile})
}

func (s *Store) deleteFromBoth(ctx context.Context, ns namespace.Namespace, fields []Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[ns]++

	return stderrors.Join(
		deleteFields(ctx, s.backends[Durable], ns, fields),
		deleteFields(ctx, s.backends[TabScoped], ns, fields),
	)
}

// PurgeLegacy deletes the pre-namespacing global keys from both backends.
func (s *Store) PurgeLegacy(ctx context.Context) error {
	var errs []error
	for _, b := range s.backends {
		for _, key := range LegacyKeys {
			if err := b.Delete(ctx, key); err != nil {
				errs = append(errs, fmt.Errorf("deleting legacy key %s: %w", key, err))
			}
		}
	}
	return stderrors.Join(errs...)
}

// Profile returns the cached profile of ns. An undecodable profile is treated as absent.
func (s *Store) Profile(ctx context.Context, ns namespace.Namespace) (*Profile, bool) {
	raw, ok := s.Get(ctx, ns, FieldProfile)
	if !ok {
		return nil, false
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		log.Debug().Err(err).Str("namespace", ns.String()).Msg("ignoring undecodable cached profile")
		return nil, false
	}
	return &p, true
}

// SetProfile caches p for ns in the backend holding the namespace's refresh token.
// Profile writes do not advance the write counter.
func (s *Store) SetProfile(ctx context.Context, ns namespace.Namespace, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setProfileLocked(ctx, ns, p)
}

// SetProfileIfVersion is SetProfile guarded by the namespace write counter.
func (s *Store) SetProfileIfVersion(ctx context.Context, ns namespace.Namespace, p *Profile, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[ns] != version {
		return fmt.Errorf("caching profile for %s: %w", ns, errors.ErrStaleWrite)
	}
	return s.setProfileLocked(ctx, ns, p)
}

func (s *Store) setProfileLocked(ctx context.Context, ns namespace.Namespace, p *Profile) error {
	if p == nil {
		return fmt.Errorf("caching profile for %s: %w", ns, errors.ErrInvalidRequest)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	kind := s.homeKind(ctx, ns)
	key := Key(ns, FieldProfile)
	if err := s.backends[kind].Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("writing %s to %s storage: %w", key, kind, err)
	}
	return nil
}

func (r Record) values() (map[Field]string, error) {
	values := map[Field]string{
		FieldAccess:  r.Access,
		FieldRefresh: r.Refresh,
		FieldRole:    r.Role,
	}
	if r.Profile != nil {
		data, err := json.Marshal(r.Profile)
		if err != nil {
			return nil, fmt.Errorf("encoding profile: %w", err)
		}
		values[FieldProfile] = string(data)
	}
	return values, nil
}

func deleteFields(ctx context.Context, b Backend, ns namespace.Namespace, fields []Field) error {
	var errs []error
	for _, f := range fields {
		if err := b.Delete(ctx, Key(ns, f)); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s: %w", Key(ns, f), err))
		}
	}
	return stderrors.Join(errs...)
}
