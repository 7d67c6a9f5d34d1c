package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN       string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL       string `env:"RABBITMQ_URL,required=true"`
	RedisURL          string `env:"REDIS_URL,required=true"`
	EncryptionKey     string `env:"ENCRYPTION_KEY,required=true"`
	AppEnv            string `env:"APP_ENV,default=development"`
	APIPort           int    `env:"API_PORT,default=8080"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=16"`
	ScanIntervalSec   int    `env:"SCAN_INTERVAL_SECONDS,default=5"`
	ScanBatchSize     int    `env:"SCAN_BATCH_SIZE,default=100"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// IsProduction gates delivery: outside production, intake stops at the
// PREVIEW state and nothing reaches the broker.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}
