package memory

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-role-sessions/storage"
)

var (
	_ storage.Provider = (*Provider)(nil)
	_ storage.Backend  = (*Backend)(nil)
)

// Provider is an in-memory storage.Provider. Each scope gets its own key space.
type Provider struct {
	mu     sync.RWMutex
	scopes map[string]*Backend
}

// NewProvider creates an empty in-memory provider
func NewProvider() *Provider {
	return &Provider{scopes: make(map[string]*Backend)}
}

// Backend returns the backend for scope, creating it on first use.
func (p *Provider) Backend(scope string) storage.Backend {
	p.mu.RLock()
	b, ok := p.scopes[scope]
	p.mu.RUnlock()
	if ok {
		return b
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.scopes[scope]; ok {
		return b
	}
	b = New()
	p.scopes[scope] = b
	return b
}

// Drop discards everything stored for scope, as closing a tab does.
func (p *Provider) Drop(scope string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.scopes, scope)
}

// Backend is a thread-safe in-memory storage.Backend
type Backend struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates an empty in-memory backend
func New() *Backend {
	return &Backend{values: make(map[string]string)}
}

func (b *Backend) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok, nil
}

func (b *Backend) Set(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

// Keys returns a snapshot of the stored keys.
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of stored keys.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.values)
}
