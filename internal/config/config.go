// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dukerupert/pocketmoney/internal/backup"
)

type Config struct {
	DBPath   string `env:"POCKETMONEY_DB_PATH"   envDefault:"pocketmoney.db"`
	LogLevel string `env:"POCKETMONEY_LOG_LEVEL" envDefault:"info"`
	// LogFormat is "text" or "json".
	LogFormat string `env:"POCKETMONEY_LOG_FORMAT" envDefault:"text"`

	AllowanceInterval    time.Duration `env:"POCKETMONEY_ALLOWANCE_INTERVAL"    envDefault:"1h"`
	AllowanceConcurrency int           `env:"POCKETMONEY_ALLOWANCE_CONCURRENCY" envDefault:"4"`

	// OTelEndpoint enables trace export when set.
	OTelEndpoint string `env:"POCKETMONEY_OTEL_ENDPOINT"`

	BackupPassphrase string          `env:"POCKETMONEY_BACKUP_PASSPHRASE"`
	S3               backup.S3Config `envPrefix:"POCKETMONEY_S3_"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.AllowanceInterval <= 0 {
		return Config{}, fmt.Errorf("POCKETMONEY_ALLOWANCE_INTERVAL must be positive, got %s", cfg.AllowanceInterval)
	}
	if cfg.AllowanceConcurrency < 1 {
		cfg.AllowanceConcurrency = 1
	}
	return cfg, nil
}
