package config

import "time"

const (
	storageDriverEnvVar = "STORAGE_DRIVER"
	sqlitePathEnvVar    = "SQLITE_PATH"
	redisAddrEnvVar     = "REDIS_ADDR"
	redisPasswordEnvVar = "REDIS_PASSWORD"
	redisPrefixEnvVar   = "REDIS_PREFIX"
	redisTTLEnvVar      = "REDIS_TTL"
)

// Durable storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type StorageConfig interface {
	GetStorageDriver() string
	GetSQLitePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisPrefix() string
	GetRedisTTL() time.Duration
}

type Storage struct {
	src *source
}

var _ StorageConfig = Storage{}

// GetStorageDriver selects the durable backend: memory, sqlite or redis.
func (s Storage) GetStorageDriver() string {
	return s.src.get(storageDriverEnvVar, DriverMemory)
}

func (s Storage) GetSQLitePath() string {
	return s.src.get(sqlitePathEnvVar, "./data/sessions.db")
}

func (s Storage) GetRedisAddr() string {
	return s.src.get(redisAddrEnvVar, "localhost:6379")
}

func (s Storage) GetRedisPassword() string {
	return s.src.get(redisPasswordEnvVar, "")
}

func (s Storage) GetRedisPrefix() string {
	return s.src.get(redisPrefixEnvVar, "role-sessions")
}

// GetRedisTTL expires idle browser scopes. Zero keeps them forever.
func (s Storage) GetRedisTTL() time.Duration {
	return s.src.duration(redisTTLEnvVar, 0)
}
