// Package config provides configuration management for the accrual runner.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Service  ServiceConfig
	Worker   WorkerConfig
	Retry    RetryConfig
	Session  SessionConfig
	Database DatabaseConfig
	Wallets  WalletsConfig
	Shutdown ShutdownConfig
	Logging  LoggingConfig
}

// ServiceConfig holds remote accrual service configuration
type ServiceConfig struct {
	BaseURL        string
	Referer        string
	UserAgent      string
	RequestTimeout time.Duration
	RateLimit      float64 // requests per second across all workers; 0 disables
	RateBurst      int
}

// WorkerConfig holds per-account worker tuning
type WorkerConfig struct {
	Hashrate        float64
	PollInterval    time.Duration
	FailureCooldown time.Duration
	InitRetryDelay  time.Duration
}

// RetryConfig holds remote call retry configuration
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// SessionConfig selects and configures the session backend
type SessionConfig struct {
	Backend  string // file, redis or postgres
	Dir      string
	RedisTTL time.Duration

	// AutoMigrate applies MigrationsPath before the postgres backend is used
	AutoMigrate    bool
	MigrationsPath string
}

// DatabaseConfig holds configuration for the optional session databases
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// WalletsConfig holds account list configuration
type WalletsConfig struct {
	File   string
	Strict bool
}

// ShutdownConfig holds shutdown fan-out configuration
type ShutdownConfig struct {
	Concurrency int // 0 stops every worker at once
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Service: ServiceConfig{
			BaseURL:        strings.TrimRight(getEnv("ACCRUAL_BASE_URL", "https://kaleidofinance.xyz/api/testnet"), "/"),
			Referer:        getEnv("ACCRUAL_REFERER", "https://kaleidofinance.xyz/testnet"),
			UserAgent:      getEnv("ACCRUAL_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"),
			RequestTimeout: getEnvAsDuration("ACCRUAL_REQUEST_TIMEOUT", 30*time.Second),
			RateLimit:      getEnvAsFloat("ACCRUAL_RATE_LIMIT", 5),
			RateBurst:      getEnvAsInt("ACCRUAL_RATE_BURST", 10),
		},
		Worker: WorkerConfig{
			Hashrate:        getEnvAsFloat("WORKER_HASHRATE", 75.5),
			PollInterval:    getEnvAsDuration("WORKER_POLL_INTERVAL", 30*time.Second),
			FailureCooldown: getEnvAsDuration("WORKER_FAILURE_COOLDOWN", 60*time.Second),
			InitRetryDelay:  getEnvAsDuration("WORKER_INIT_RETRY_DELAY", 10*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts:  getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay: getEnvAsDuration("RETRY_INITIAL_DELAY", 1*time.Second),
		},
		Session: SessionConfig{
			Backend:  strings.ToLower(getEnv("SESSION_BACKEND", "file")),
			Dir:      getEnv("SESSION_DIR", "."),
			RedisTTL: getEnvAsDuration("SESSION_REDIS_TTL", 0),

			AutoMigrate:    getEnvAsBool("SESSION_AUTO_MIGRATE", true),
			MigrationsPath: getEnv("SESSION_MIGRATIONS_PATH", "migrations/postgres"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "accrual_runner"),
				User:           getEnv("POSTGRES_USER", "accrual"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
			},
		},
		Wallets: WalletsConfig{
			File:   getEnv("WALLETS_FILE", "wallets.json"),
			Strict: getEnvAsBool("WALLETS_STRICT", false),
		},
		Shutdown: ShutdownConfig{
			Concurrency: getEnvAsInt("SHUTDOWN_CONCURRENCY", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the runner cannot operate with
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "file", "redis", "postgres":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Worker.Hashrate <= 0 {
		return fmt.Errorf("WORKER_HASHRATE must be positive, got %v", c.Worker.Hashrate)
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive, got %v", c.Worker.PollInterval)
	}
	return nil
}

// PostgresURL returns the connection URL used by migrations
func (c *PostgresConfig) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
