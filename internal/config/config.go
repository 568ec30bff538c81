package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN)
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Base URL advertised to the checker for result callbacks
	ServerURL string

	// Maximum database connection pool size
	MaxDBConnections int

	// Enable debug logging
	Debug bool

	// Session lifecycle tuning
	Session SessionConfig

	// Edit lock lease tuning
	Lock LockConfig

	// External model checker configuration
	Checker CheckerConfig

	// Optional path to a JSON Schema overriding the embedded model schema
	ModelSchemaPath string
}

// SessionConfig controls how long sessions live and how often expired
// ones are reaped.
type SessionConfig struct {
	// IdleTimeout is the sliding window: a session with no activity for
	// this long is expired.
	IdleTimeout time.Duration

	// MaxLifetime is the absolute cap measured from creation. Zero
	// disables the cap.
	MaxLifetime time.Duration

	// SweepInterval is how often the background sweeper runs.
	SweepInterval time.Duration
}

// LockConfig controls edit lock lease durations.
type LockConfig struct {
	// LeaseDuration is how long an acquired or renewed lease lasts.
	LeaseDuration time.Duration

	// MaxLeaseDuration caps the total time a single session may hold a
	// lock across renewals. Zero disables the cap.
	MaxLeaseDuration time.Duration
}

// CheckerConfig points at the external verification engine.
type CheckerConfig struct {
	// URL is the checker's base endpoint. Empty disables query runs.
	URL string

	// SharedSecret signs callback tokens handed to the checker.
	SharedSecret string

	// RequestTimeout bounds synchronous dispatch calls.
	RequestTimeout time.Duration
}

// Enabled reports whether a checker endpoint is configured.
func (c *CheckerConfig) Enabled() bool {
	return c.URL != ""
}

// Load reads configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", "file:modelhub.db?_pragma=foreign_keys(1)"),
		ServerAddr:       getEnv("SERVER_ADDR", "localhost:8080"),
		ServerURL:        getEnv("SERVER_URL", "http://localhost:8080"),
		MaxDBConnections: getEnvInt("MAX_DB_CONNECTIONS", 25),
		Debug:            getEnvBool("DEBUG", false),
		ModelSchemaPath:  getEnv("MODEL_SCHEMA_PATH", ""),
		Session: SessionConfig{
			IdleTimeout:   getEnvDuration("SESSION_IDLE_TIMEOUT", 10*time.Minute),
			MaxLifetime:   getEnvDuration("SESSION_MAX_LIFETIME", 24*time.Hour),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		},
		Lock: LockConfig{
			LeaseDuration:    getEnvDuration("LOCK_LEASE_DURATION", 10*time.Minute),
			MaxLeaseDuration: getEnvDuration("LOCK_MAX_LEASE_DURATION", 2*time.Hour),
		},
		Checker: CheckerConfig{
			URL:            getEnv("CHECKER_URL", ""),
			SharedSecret:   getEnv("CHECKER_SHARED_SECRET", ""),
			RequestTimeout: getEnvDuration("CHECKER_REQUEST_TIMEOUT", 30*time.Second),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ServerAddr == "" {
		return nil, fmt.Errorf("SERVER_ADDR is required")
	}

	if cfg.Session.IdleTimeout <= 0 {
		return nil, fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if cfg.Session.SweepInterval <= 0 {
		return nil, fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive")
	}
	if cfg.Session.MaxLifetime < 0 {
		return nil, fmt.Errorf("SESSION_MAX_LIFETIME must not be negative")
	}
	if cfg.Session.MaxLifetime > 0 && cfg.Session.MaxLifetime < cfg.Session.IdleTimeout {
		return nil, fmt.Errorf("SESSION_MAX_LIFETIME must not be shorter than SESSION_IDLE_TIMEOUT")
	}

	if cfg.Lock.LeaseDuration <= 0 {
		return nil, fmt.Errorf("LOCK_LEASE_DURATION must be positive")
	}
	if cfg.Lock.MaxLeaseDuration > 0 && cfg.Lock.MaxLeaseDuration < cfg.Lock.LeaseDuration {
		return nil, fmt.Errorf("LOCK_MAX_LEASE_DURATION must not be shorter than LOCK_LEASE_DURATION")
	}

	// A checker without a shared secret would accept unauthenticated
	// result callbacks, so require both or neither.
	if cfg.Checker.URL != "" && cfg.Checker.SharedSecret == "" {
		return nil, fmt.Errorf("CHECKER_SHARED_SECRET is required when CHECKER_URL is set")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "10m") or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
