package config

import "time"

const prefetchTimeoutEnvVar = "PREFETCH_TIMEOUT"

type SessionConfig interface {
	GetPrefetchTimeout() time.Duration
}

type Session struct {
	src *source
}

var _ SessionConfig = Session{}

// GetPrefetchTimeout bounds how long an impersonation hand-off waits for the profile.
func (s Session) GetPrefetchTimeout() time.Duration {
	return s.src.duration(prefetchTimeoutEnvVar, 1500*time.Millisecond)
}
