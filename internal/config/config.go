// Package config loads process configuration from the environment. A
// .env file in the working directory is loaded first when present.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything the server needs to wire its collaborators.
// Empty DatabaseURL selects the in-memory store; empty KafkaBrokers and
// RedisAddr disable event publishing and balance caching respectively.
type Config struct {
	HTTPAddr     string        `env:"LEDGER_HTTP_ADDR" envDefault:":8080"`
	DatabaseURL  string        `env:"LEDGER_DATABASE_URL"`
	KafkaBrokers []string      `env:"LEDGER_KAFKA_BROKERS" envSeparator:","`
	RedisAddr    string        `env:"LEDGER_REDIS_ADDR"`
	CacheTTL     time.Duration `env:"LEDGER_CACHE_TTL" envDefault:"5m"`
	LogLevel     string        `env:"LEDGER_LOG_LEVEL" envDefault:"info"`
}

// Load reads .env (if any) and parses environment variables.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}
