// Package config loads runtime configuration from .env, environment and flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Writer   WriterConfig
	Logging  LoggingConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig selects and locates the record store.
type DatabaseConfig struct {
	Driver string // memory | sqlite | postgres
	Path   string // sqlite file, ":memory:" allowed
	URL    string // postgres connection string
}

// WriterConfig tunes the Concurrency-Safe Writer.
type WriterConfig struct {
	MaxAttempts int
	Tolerance   decimal.Decimal
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string
	Format string // json | text
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	tolerance, err := decimal.NewFromString(getEnv("WRITE_TOLERANCE", "0.000000001"))
	if err != nil {
		return nil, fmt.Errorf("WRITE_TOLERANCE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			CORSOrigins:     getEnvAsSlice("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", DriverSQLite),
			Path:   getEnv("DB_PATH", "ledger.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		Writer: WriterConfig{
			MaxAttempts: getEnvAsInt("WRITE_MAX_ATTEMPTS", 5),
			Tolerance:   tolerance,
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of memory, sqlite, postgres; got %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Server.Port)
	}
	if c.Writer.MaxAttempts < 1 {
		return fmt.Errorf("WRITE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Writer.Tolerance.IsNegative() {
		return fmt.Errorf("WRITE_TOLERANCE must not be negative")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
