// Package config provides configuration management for the brane worker process.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the worker process's ambient configuration: everything that
// is environment-shaped (ports, cache, log level). The domain-specific
// document describing this worker's administrative domain — location id,
// data paths, peer certificates — is node.yml, loaded separately by
// worker.LoadNodeConfig.
type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Logging LoggingConfig
	Cleanup CleanupConfig
}

// ServerConfig holds the worker's gRPC and HTTP health-surface settings.
type ServerConfig struct {
	GRPCPort        int
	HTTPPort        int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// RedisConfig holds settings for the optional package-digest cache.
// When URL is empty the worker runs without a distributed cache and
// digest lookups always go to the control-plane API.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// CleanupConfig controls the periodic sweep of orphaned temp-data and
// temp-results directories (see internal/worker/cleanup.go).
type CleanupConfig struct {
	Enabled  bool
	Schedule string // cron expression
	MaxAge   time.Duration
}

// Load loads the configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{
		Server: ServerConfig{
			GRPCPort:        getEnvAsInt("BRANE_WORKER_GRPC_PORT", 50052),
			HTTPPort:        getEnvAsInt("BRANE_WORKER_HTTP_PORT", 8585),
			Host:            getEnv("BRANE_WORKER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("BRANE_WORKER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("BRANE_WORKER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("BRANE_WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("BRANE_WORKER_REDIS_URL", ""),
			Password: getEnv("BRANE_WORKER_REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("BRANE_WORKER_REDIS_DB", 0),
			PoolSize: getEnvAsInt("BRANE_WORKER_REDIS_POOL_SIZE", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("BRANE_WORKER_LOG_LEVEL", "info"),
			Format: getEnv("BRANE_WORKER_LOG_FORMAT", "json"),
		},
		Cleanup: CleanupConfig{
			Enabled:  getEnvAsBool("BRANE_WORKER_CLEANUP_ENABLED", true),
			Schedule: getEnv("BRANE_WORKER_CLEANUP_SCHEDULE", "@every 1h"),
			MaxAge:   getEnvAsDuration("BRANE_WORKER_CLEANUP_MAX_AGE", 24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.GRPCPort < 1 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}

	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.HTTPPort)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
