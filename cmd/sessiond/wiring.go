package main

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-role-sessions/backend"
	"github.com/jrsteele09/go-role-sessions/backend/backendfake"
	"github.com/jrsteele09/go-role-sessions/internal/config"
	"github.com/jrsteele09/go-role-sessions/server"
	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/jrsteele09/go-role-sessions/storage/memory"
	"github.com/jrsteele09/go-role-sessions/storage/redis"
	"github.com/jrsteele09/go-role-sessions/storage/sqlite"
	"github.com/jrsteele09/go-role-sessions/token/jwt"
	"github.com/jrsteele09/go-role-sessions/token/keys"
	"github.com/rs/zerolog/log"
)

// openStorage opens the durable storage provider selected by STORAGE_DRIVER.
func openStorage(ctx context.Context, c config.Config) (storage.Provider, func(), error) {
	switch driver := c.GetStorageDriver(); driver {
	case config.DriverMemory:
		log.Warn().Msg("durable storage is in memory; remembered sessions are lost on restart")
		return memory.NewProvider(), func() {}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(sqlite.Config{Path: c.GetSQLitePath(), BusyTimeout: sqlite.DefaultBusyTimeout, WALMode: true})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", db.Path()).Msg("durable storage: sqlite")
		return db, closer("sqlite", db.Close), nil

	case config.DriverRedis:
		p, err := redis.Open(ctx, redis.Config{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			Prefix:   c.GetRedisPrefix(),
			TTL:      c.GetRedisTTL(),
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("addr", c.GetRedisAddr()).Msg("durable storage: redis")
		return p, closer("redis", p.Close), nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

func closer(name string, closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			log.Warn().Err(err).Str("storage", name).Msg("closing durable storage")
		}
	}
}

// openBackend connects to BACKEND_URL, or starts the in-process development
// backend seeded with the demo accounts when it is unset. The development
// backend is also served under /backend/ for sessionctl.
func openBackend(ctx context.Context, c config.Config) (backend.Client, []server.Option, error) {
	if url := c.GetBackendURL(); url != "" {
		var opts []jwt.DecoderOption
		if jwks := c.GetJWKSURL(); jwks != "" {
			opts = append(opts, jwt.WithKeySet(oidc.NewRemoteKeySet(ctx, jwks)))
		}
		log.Info().Str("backend", url).Bool("verify", len(opts) > 0).Msg("using authentication backend")
		client := backend.NewHTTPClient(url, backend.WithTimeout(c.GetBackendTimeout()))
		return client, []server.Option{server.WithDecoder(jwt.NewDecoder(opts...))}, nil
	}

	var fakeOpts []backendfake.Option
	if path := c.GetDevSigningKeyFile(); path != "" {
		kp, err := keys.LoadOrGenerate(backendfake.KeyID, path)
		if err != nil {
			return nil, nil, err
		}
		fakeOpts = append(fakeOpts, backendfake.WithKeyPair(kp))
	}
	fake, err := backendfake.New(fakeOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("starting development backend: %w", err)
	}
	if err := fake.RegisterAll(backendfake.DemoAccounts...); err != nil {
		return nil, nil, fmt.Errorf("seeding development backend: %w", err)
	}
	log.Warn().Str("password", backendfake.DemoPassword).Msg("BACKEND_URL not set, using the development backend with demo accounts")
	return fake, []server.Option{
		server.WithDecoder(jwt.NewDecoder(jwt.WithKeySet(fake.KeySet()))),
		server.WithBackendHandler(fake.Handler()),
	}, nil
}
