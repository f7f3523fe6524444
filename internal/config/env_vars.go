package config

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	portEnvVar           = "PORT"
	appNameVar           = "APP_NAME"
	envEnvVar            = "ENV"
	logLevelEnvVar       = "LOG_LEVEL"
	backendURLEnvVar     = "BACKEND_URL"
	backendTimeoutEnvVar = "BACKEND_TIMEOUT"
	jwksURLEnvVar        = "JWKS_URL"
	configFileEnvVar     = "CONFIG_FILE"
	devSigningKeyEnvVar  = "DEV_SIGNING_KEY_FILE"
)

type EnvVars struct {
	src *source
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.src.get(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.src.get(appNameVar, "Role Sessions")
}

func (e EnvVars) GetEnv() string {
	return e.src.get(envEnvVar, "DEV")
}

func (e EnvVars) GetLogLevel() string {
	return e.src.get(logLevelEnvVar, "info")
}

// GetBackendURL is the base URL of the authentication backend. Empty means
// the in-process development backend is used.
func (e EnvVars) GetBackendURL() string {
	return e.src.get(backendURLEnvVar, "")
}

func (e EnvVars) GetBackendTimeout() time.Duration {
	return e.src.duration(backendTimeoutEnvVar, 10*time.Second)
}

// GetJWKSURL enables signature verification of access tokens against the issuer's keys.
func (e EnvVars) GetJWKSURL() string {
	return e.src.get(jwksURLEnvVar, "")
}

// GetDevSigningKeyFile keeps the development backend's signing key across
// restarts. Empty means a new key on every start.
func (e EnvVars) GetDevSigningKeyFile() string {
	return e.src.get(devSigningKeyEnvVar, "")
}

// GetEnv returns the value of envVar or defaultValue when it is unset.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func (s *source) duration(key string, defaultValue time.Duration) time.Duration {
	raw := s.get(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.Warn().Str("key", key).Str("value", raw).Msg("invalid duration, using default")
		return defaultValue
	}
	return d
}
