package config

import "os"

type AppConfig struct {
	DebugMode      bool
	SchedulerCfg   *SchedulerCfg
	RedisConfig    *RedisConfig
	PostgresConfig *PostgresConfig
	TLSConfig      *TLSConfig
	BrokerConfig   *BrokerConfig
}

func NewSystemConfig() *AppConfig {
	return &AppConfig{
		DebugMode:      os.Getenv("DEBUG_MODE") == "true",
		SchedulerCfg:   NewSchedulerCfg(),
		RedisConfig:    NewRedisConfig(),
		PostgresConfig: NewPostgresConfig(),
		TLSConfig:      NewTLSConfig(),
		BrokerConfig:   NewBrokerConfig(),
	}
}

// getEnv gets an environment variable with a fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
