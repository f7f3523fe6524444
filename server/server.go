package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jrsteele09/go-role-sessions/backend"
	"github.com/jrsteele09/go-role-sessions/internal/config"
	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/jrsteele09/go-role-sessions/storage/memory"
	"github.com/jrsteele09/go-role-sessions/token/jwt"
	"github.com/rs/zerolog/log"
)

const defaultMaxBrowsers = 10000

// Pinger is implemented by durable storage providers that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP shell around the session subsystem. Each browser tab is
// identified by a pair of cookies that select its durable and tab-scoped storage.
type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string
	config config.Config

	durable storage.Provider
	tabs    *memory.Provider
	client  backend.Client
	decoder *jwt.Decoder

	browsers    *lru.Cache[string, *browserSession]
	maxBrowsers int

	loginTmpl *template.Template

	backendHandler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithDecoder sets the decoder used for every token the shell reads.
func WithDecoder(d *jwt.Decoder) Option {
	return func(s *Server) {
		s.decoder = d
	}
}

// WithTabProvider sets the tab-scoped storage provider.
func WithTabProvider(p *memory.Provider) Option {
	return func(s *Server) {
		s.tabs = p
	}
}

// WithBackendHandler serves h under /backend/, so command line clients can
// reach an in-process development backend.
func WithBackendHandler(h http.Handler) Option {
	return func(s *Server) {
		s.backendHandler = h
	}
}

// WithMaxBrowsers bounds how many browser tabs are tracked at once.
func WithMaxBrowsers(n int) Option {
	return func(s *Server) {
		s.maxBrowsers = n
	}
}

func New(cfg config.Config, durable storage.Provider, client backend.Client, opts ...Option) (*Server, error) {
	s := &Server{
		env:         cfg.GetEnv(),
		mux:         http.NewServeMux(),
		config:      cfg,
		durable:     durable,
		tabs:        memory.NewProvider(),
		client:      client,
		decoder:     jwt.NewDecoder(),
		maxBrowsers: defaultMaxBrowsers,
	}
	for _, opt := range opts {
		opt(s)
	}

	browsers, err := lru.NewWithEvict(s.maxBrowsers, func(_ string, b *browserSession) {
		b.unmountAll()
		s.tabs.Drop(b.tabID)
	})
	if err != nil {
		return nil, fmt.Errorf("[Server New] creating browser cache: %w", err)
	}
	s.browsers = browsers

	if s.loginTmpl, err = parseLoginTemplate(); err != nil {
		return nil, fmt.Errorf("[Server New] %w", err)
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Debug().Msgf("[%s %-7s%s] %s", color, method, ResetColor, path)
}

// getScheme determines the request scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
