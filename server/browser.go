package server

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-role-sessions/guard"
	"github.com/jrsteele09/go-role-sessions/impersonation"
	"github.com/jrsteele09/go-role-sessions/login"
	"github.com/jrsteele09/go-role-sessions/session"
	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/jrsteele09/go-role-sessions/token/refresh"
)

// browserSession is the session subsystem of one browser tab. Tabs of the same
// browser share durable storage through durableID and keep their own
// tab-scoped storage under tabID.
type browserSession struct {
	durableID string
	tabID     string

	store    *storage.Store
	resolver *session.StoreResolver
	flow     *login.Flow
	ingester *impersonation.Ingester

	mu     sync.Mutex
	mounts map[string]*guard.Mount
}

// mount returns the live mount of policy, creating it on first navigation.
func (b *browserSession) mount(p guard.Policy) *guard.Mount {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.mounts[p.Name()]
	if !ok {
		m = guard.NewMount(b.resolver, p)
		b.mounts[p.Name()] = m
	}
	return m
}

// unmountAll discards every mount so in-flight navigations cannot apply.
func (b *browserSession) unmountAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, m := range b.mounts {
		m.Unmount()
		delete(b.mounts, name)
	}
}

// browser returns the session of the tab making r, issuing identifying cookies
// on w when the request carries none.
func (s *Server) browser(w http.ResponseWriter, r *http.Request) *browserSession {
	durableID := s.cookieID(w, r, durableCookieName, int(s.config.GetDurableCookieMaxAge().Seconds()))
	tabID := s.cookieID(w, r, tabCookieName, 0)

	key := durableID + "/" + tabID
	if b, ok := s.browsers.Get(key); ok {
		return b
	}

	b := s.newBrowserSession(durableID, tabID)
	if existing, ok, _ := s.browsers.PeekOrAdd(key, b); ok {
		return existing
	}
	return b
}

func (s *Server) newBrowserSession(durableID, tabID string) *browserSession {
	store := storage.NewStore(s.durable.Backend(durableID), s.tabs.Backend(tabID))
	coordinator := refresh.NewCoordinator(store, s.client, refresh.WithDecoder(s.decoder))
	return &browserSession{
		durableID: durableID,
		tabID:     tabID,
		store:     store,
		resolver:  session.NewResolver(store, coordinator),
		flow:      login.NewFlow(store, s.client, login.WithDecoder(s.decoder)),
		ingester:  impersonation.NewIngester(store, s.client, impersonation.WithPrefetchTimeout(s.config.GetPrefetchTimeout())),
		mounts:    make(map[string]*guard.Mount),
	}
}

// cookieID returns the uuid held by the named cookie, minting a new one when it
// is missing or invalid. maxAge 0 makes a session cookie.
func (s *Server) cookieID(w http.ResponseWriter, r *http.Request, name string, maxAge int) string {
	if c, err := r.Cookie(name); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.config.GetSecureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	// Later lookups within the same request must see the new id.
	r.AddCookie(&http.Cookie{Name: name, Value: id})
	return id
}

// Wait blocks until background work of every tracked tab has finished.
func (s *Server) Wait() {
	for _, b := range s.browsers.Values() {
		b.ingester.Wait()
	}
}
