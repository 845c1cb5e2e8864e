package config

type Config interface {
	EnvConfig
	TokenConfig
	SecurityConfig
	RedisConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Tokens
	Security
	Redis
}

func New() Config {
	return mainConfig{}
}
