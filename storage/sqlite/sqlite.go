// Package sqlite is a durable storage.Provider backed by a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/rs/zerolog/log"
)

const (
	dirPermissions    = 0700
	filePermissions   = 0600
	connectionTimeout = 5 * time.Second

	// DefaultBusyTimeout is used when Config.BusyTimeout is not set.
	DefaultBusyTimeout = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS browser_storage (
	scope      TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (scope, key)
)`

// Config holds the SQLite connection settings.
type Config struct {
	// Path of the database file. Its directory is created if missing.
	Path string

	// BusyTimeout is how long to wait on a locked database.
	BusyTimeout time.Duration

	WALMode bool
}

// dsn builds the go-sqlite3 connection string. _busy_timeout is in milliseconds.
func (cfg Config) dsn() string {
	timeout := cfg.BusyTimeout
	if timeout <= 0 {
		timeout = DefaultBusyTimeout
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", cfg.Path, timeout.Milliseconds())
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	return dsn
}

// DB is an open session database. It hands out one Backend per scope.
type DB struct {
	db   *sql.DB
	path string
}

var _ storage.Provider = (*DB)(nil)

// Open opens (creating if needed) the database at cfg.Path and ensures the schema exists.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, stderrors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	sqlDB, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		sqlDB.Close() //nolint:errcheck
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := os.Chmod(cfg.Path, filePermissions); err != nil {
		log.Debug().Err(err).Str("path", cfg.Path).Msg("could not restrict database file permissions")
	}

	return &DB{db: sqlDB, path: cfg.Path}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Ping checks the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Backend returns the storage area of scope.
func (d *DB) Backend(scope string) storage.Backend {
	return &Backend{db: d.db, scope: scope}
}

// Backend is one scope of the browser_storage table.
type Backend struct {
	db    *sql.DB
	scope string
}

func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM browser_storage WHERE scope = ? AND key = ?`, b.scope, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO browser_storage (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		b.scope, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM browser_storage WHERE scope = ? AND key = ?`, b.scope, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}
