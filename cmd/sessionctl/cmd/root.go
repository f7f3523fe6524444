// Package cmd implements sessionctl, a terminal client that keeps one session
// per role against the authentication backend.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-role-sessions/backend"
	"github.com/jrsteele09/go-role-sessions/internal/logging"
	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/jrsteele09/go-role-sessions/storage/memory"
	"github.com/jrsteele09/go-role-sessions/storage/sqlite"
	"github.com/jrsteele09/go-role-sessions/token/jwt"
	"github.com/spf13/cobra"
)

// durableScope partitions the CLI's rows in the durable database.
const durableScope = "sessionctl"

var (
	backendURL string
	jwksURL    string
	dataDir    string
	timeout    time.Duration
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "sessionctl",
	Short: "Role sessions CLI - sign in as several roles at once",
	Long: `sessionctl keeps an independent session per role (user, agency, employee
and admin) against the authentication backend. Remembered sessions are kept in
a local database and refreshed on demand; the rest last for one invocation.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logging.Setup("DEV", level)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", envOr("BACKEND_URL", "http://localhost:8080/backend"), "Authentication backend URL (also set via BACKEND_URL)")
	rootCmd.PersistentFlags().StringVar(&jwksURL, "jwks", os.Getenv("JWKS_URL"), "Verify access tokens against this JWKS document (also set via JWKS_URL)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory of the session database (default ~/.role-sessions)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "Timeout of each command")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(impersonateCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// env is what every command works with: the namespaced store over the local
// database and the backend client.
type env struct {
	db      *sqlite.DB
	store   *storage.Store
	client  *backend.HTTPClient
	decoder *jwt.Decoder
}

func openEnv(ctx context.Context) (*env, error) {
	dir := dataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dir = filepath.Join(home, ".role-sessions")
	}
	db, err := sqlite.Open(sqlite.Config{Path: filepath.Join(dir, "sessions.db"), BusyTimeout: sqlite.DefaultBusyTimeout, WALMode: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	var opts []jwt.DecoderOption
	if jwksURL != "" {
		opts = append(opts, jwt.WithKeySet(oidc.NewRemoteKeySet(ctx, jwksURL)))
	}
	return &env{
		db:      db,
		store:   storage.NewStore(db.Backend(durableScope), memory.New()),
		client:  backend.NewHTTPClient(backendURL, backend.WithTimeout(timeout)),
		decoder: jwt.NewDecoder(opts...),
	}, nil
}

func (e *env) Close() {
	_ = e.db.Close()
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
