package config

import (
	"strings"
	"time"
)

const durableCookieMaxAgeEnvVar = "DURABLE_COOKIE_MAX_AGE"

type SecurityConfig interface {
	GetSecureCookies() bool
	GetDurableCookieMaxAge() time.Duration
}

type Security struct {
	src *source
}

var _ SecurityConfig = Security{}

// GetSecureCookies is true outside DEV, or when SECURE_COOKIES says so.
func (s Security) GetSecureCookies() bool {
	switch strings.ToLower(s.src.get("SECURE_COOKIES", "")) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return !strings.EqualFold(s.src.get(envEnvVar, "DEV"), "DEV")
}

// GetDurableCookieMaxAge is the lifetime of the cookie that identifies a browser's durable storage.
func (s Security) GetDurableCookieMaxAge() time.Duration {
	return s.src.duration(durableCookieMaxAgeEnvVar, 30*24*time.Hour)
}
