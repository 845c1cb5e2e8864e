package config

type RedisConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Redis struct{}

var _ RedisConfig = Redis{}

// GetRedisAddr returns the address of the token store. Empty means the
// in-memory store is used instead.
func (Redis) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}

func (Redis) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Redis) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", 0)
}
