package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config interface {
	EnvConfig
	CorsConfig
	StorageConfig
	SessionConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetBackendURL() string
	GetBackendTimeout() time.Duration
	GetJWKSURL() string
	GetDevSigningKeyFile() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Storage
	Session
	Security
}

// New returns a Config that reads environment variables only.
func New() Config {
	return newConfig(nil)
}

// Load returns a Config that reads environment variables first and the YAML
// file at path second. Nested keys are flattened to environment variable
// names, so storage.driver in the file is STORAGE_DRIVER and
// redis.addr is REDIS_ADDR.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	values := make(map[string]string)
	flatten("", doc, values)
	return newConfig(&source{file: values}), nil
}

// FromEnv loads CONFIG_FILE when it is set and falls back to New otherwise.
func FromEnv() (Config, error) {
	if path := os.Getenv(configFileEnvVar); path != "" {
		return Load(path)
	}
	return New(), nil
}

func newConfig(src *source) Config {
	return mainConfig{
		EnvVars:  EnvVars{src},
		Cors:     Cors{src},
		Storage:  Storage{src},
		Session:  Session{src},
		Security: Security{src},
	}
}

// source resolves a key: environment first, then the config file.
type source struct {
	file map[string]string
}

func (s *source) get(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if s != nil {
		if v := s.file[key]; v != "" {
			return v
		}
	}
	return defaultValue
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := strings.ToUpper(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
