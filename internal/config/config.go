// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the sync daemon.
type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	AppAddr         string        `envconfig:"APP_ADDR" default:":8087"`
	AppReadTimeout  time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// RemoteURL is the base URL of the backend the queue drains to.
	RemoteURL     string        `envconfig:"REMOTE_URL" required:"true"`
	RemoteTimeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"10s"`
	HealthURL     string        `envconfig:"HEALTH_URL"`
	ProbeInterval time.Duration `envconfig:"PROBE_INTERVAL" default:"15s"`

	DBPath string `envconfig:"DB_PATH" default:"divvy.db"`

	SyncMaxAttempts int           `envconfig:"SYNC_MAX_ATTEMPTS" default:"5"`
	SyncBaseBackoff time.Duration `envconfig:"SYNC_BASE_BACKOFF" default:"2s"`
	SyncMaxBackoff  time.Duration `envconfig:"SYNC_MAX_BACKOFF" default:"5m"`
	SyncJitter      float64       `envconfig:"SYNC_JITTER" default:"0.1"`
	SyncWakeEvery   time.Duration `envconfig:"SYNC_WAKE_EVERY" default:"1m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.RemoteURL == "" {
		return nil, errors.New("remote url must be provided")
	}
	if cfg.HealthURL == "" {
		cfg.HealthURL = cfg.RemoteURL + "/healthz"
	}
	return &cfg, nil
}

// IsProduction returns true when the daemon runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
