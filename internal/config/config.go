// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of the dashboard server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Events   EventsConfig
	Auth     AuthConfig
	Logging  LoggingConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port        int    `env:"SERVER_PORT,default=8080"`
	MetricsPath string `env:"METRICS_PATH,default=/metrics"`
}

// DatabaseConfig configures the postgres connection. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL          string `env:"DATABASE_URL"`
	MaxOpenConns int    `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
}

// EventsConfig tunes the event pipeline.
type EventsConfig struct {
	QueueSize       int `env:"EVENTS_QUEUE_SIZE,default=100"`
	DispatchTimeout int `env:"EVENTS_DISPATCH_TIMEOUT_SECONDS,default=15"`
}

// AuthConfig configures access token validation.
type AuthConfig struct {
	JWTSecret   string `env:"JWT_SECRET"`
	TokenTTLHrs int    `env:"TOKEN_TTL_HOURS,default=24"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=text"`
}

// Load reads an optional .env file, then decodes the configuration from the
// environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Events.QueueSize <= 0 {
		return nil, fmt.Errorf("EVENTS_QUEUE_SIZE must be positive")
	}
	return &cfg, nil
}
