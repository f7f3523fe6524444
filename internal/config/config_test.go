package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-role-sessions/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "STORAGE_DRIVER", "PREFETCH_TIMEOUT", "ALLOWED_ORIGINS", "SECURE_COOKIES", "BACKEND_URL"} {
		t.Setenv(key, "")
	}
	c := config.New()

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, config.DriverMemory, c.GetStorageDriver())
	require.Equal(t, 1500*time.Millisecond, c.GetPrefetchTimeout())
	require.Equal(t, 10*time.Second, c.GetBackendTimeout())
	require.Empty(t, c.GetBackendURL())
	require.Empty(t, c.GetAllowedOrigins())
	require.False(t, c.GetSecureCookies())
}

func TestNew_Environment(t *testing.T) {
	t.Setenv("PORT", ":9000")
	t.Setenv("ENV", "PROD")
	t.Setenv("PREFETCH_TIMEOUT", "250ms")
	t.Setenv("BACKEND_TIMEOUT", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	c := config.New()

	require.Equal(t, ":9000", c.GetPort())
	require.True(t, c.GetSecureCookies())
	require.Equal(t, 250*time.Millisecond, c.GetPrefetchTimeout())
	require.Equal(t, 10*time.Second, c.GetBackendTimeout())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example.com"))
	require.Equal(t, "https://a.example.com, https://b.example.com", c.GetAllowedOrigins().String())
}

func TestLoad_FileUnderEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7070
app_name: From File
storage:
  driver: sqlite
sqlite:
  path: /var/lib/sessions.db
redis:
  prefix: from-file
  ttl: 24h
allowed_origins:
  - https://x.example.com
`), 0o600))

	t.Setenv("PORT", "")
	t.Setenv("APP_NAME", "")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("REDIS_TTL", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("REDIS_PREFIX", "from-env")

	c, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7070", c.GetPort())
	require.Equal(t, "From File", c.GetAppName())
	require.Equal(t, config.DriverSQLite, c.GetStorageDriver())
	require.Equal(t, "/var/lib/sessions.db", c.GetSQLitePath())
	require.Equal(t, "from-env", c.GetRedisPrefix())
	require.Equal(t, 24*time.Hour, c.GetRedisTTL())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://x.example.com"))
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unclosed"), 0o600))
	_, err = config.Load(path)
	require.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	c, err := config.FromEnv()
	require.NoError(t, err)
	require.NotNil(t, c)

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = config.FromEnv()
	require.Error(t, err)
}
