// Package config loads application configuration from TEAMGATE_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nbulygin/teamgate/pkg/observability"
	"github.com/nbulygin/teamgate/pkg/store/postgres"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Telegram configuration
	Telegram TelegramConfig

	// Postgres configuration
	Postgres postgres.Config

	// Redis configuration
	Redis RedisConfig

	// Observability configuration
	Observability ObservabilityConfig

	// Pagination defaults for list endpoints
	Pagination PaginationConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// TelegramConfig holds Bot API settings
type TelegramConfig struct {
	BotToken string
	// InitDataMaxAge bounds how old a signed payload may be.
	InitDataMaxAge time.Duration
}

// RedisConfig holds the username cache settings. An empty URL disables
// the Redis tier; the in-process tier still works.
type RedisConfig struct {
	URL string
	TTL time.Duration
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// PaginationConfig bounds list endpoints
type PaginationConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("TEAMGATE_HOST", "0.0.0.0"),
			Port:            getEnv("TEAMGATE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("TEAMGATE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("TEAMGATE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("TEAMGATE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("TEAMGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("TEAMGATE_HEALTH_PORT", "9090"),
		},
		Telegram: TelegramConfig{
			BotToken:       getEnv("TEAMGATE_BOT_TOKEN", ""),
			InitDataMaxAge: getEnvDuration("TEAMGATE_INIT_DATA_MAX_AGE", 24*time.Hour),
		},
		Postgres: postgres.Config{
			URL:         getEnv("TEAMGATE_POSTGRES_URL", ""),
			MaxConns:    getEnvInt("TEAMGATE_POSTGRES_MAX_CONNS", 10),
			MinConns:    getEnvInt("TEAMGATE_POSTGRES_MIN_CONNS", 2),
			Timeout:     getEnvDuration("TEAMGATE_POSTGRES_TIMEOUT", 5*time.Second),
			MaxLifetime: getEnvDuration("TEAMGATE_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL: getEnv("TEAMGATE_REDIS_URL", ""),
			TTL: getEnvDuration("TEAMGATE_REDIS_TTL", time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLevel(getEnv("TEAMGATE_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("TEAMGATE_METRICS_ENABLED", true),
		},
		Pagination: PaginationConfig{
			DefaultLimit: getEnvInt("TEAMGATE_PAGE_LIMIT", 20),
			MaxLimit:     getEnvInt("TEAMGATE_PAGE_MAX_LIMIT", 100),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("bot token is required")
	}
	if c.Telegram.InitDataMaxAge <= 0 {
		return fmt.Errorf("init data max age must be positive")
	}
	if c.Postgres.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Pagination.DefaultLimit <= 0 || c.Pagination.MaxLimit < c.Pagination.DefaultLimit {
		return fmt.Errorf("invalid pagination limits")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
