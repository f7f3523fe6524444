// Package redis is a durable storage.Provider shared between processes through Redis.
package redis

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-role-sessions/storage"
	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "role-sessions"

// Config controls the redis client. Zero values get conservative defaults.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces every key: {prefix}:{scope}:{key}.
	Prefix string

	// TTL expires idle scopes. Zero keeps keys until they are deleted.
	TTL time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PingTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.Prefix == "" {
		out.Prefix = defaultPrefix
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 10
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// Provider hands out Redis-backed storage scopes.
type Provider struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ storage.Provider = (*Provider)(nil)

// Open connects to Redis and validates connectivity with PING.
func Open(ctx context.Context, cfg Config) (*Provider, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, stderrors.New("redis addr is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return New(rdb, cfg.Prefix, cfg.TTL), nil
}

// New wraps an existing client.
func New(client goredis.UniversalClient, prefix string, ttl time.Duration) *Provider {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Provider{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Ping checks Redis is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Backend returns the storage area of scope.
func (p *Provider) Backend(scope string) storage.Backend {
	return &Backend{client: p.client, prefix: p.prefix + ":" + scope + ":", ttl: p.ttl}
}

// Backend is one scope of keys in Redis.
type Backend struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func (b *Backend) key(k string) string {
	return b.prefix + k
}

func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := b.client.Get(ctx, b.key(key)).Result()
	if stderrors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return v, true, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	if err := b.client.Set(ctx, b.key(key), value, b.ttl).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.key(key)).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}
