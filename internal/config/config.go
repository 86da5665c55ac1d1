package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the sheltertrack server and CLI.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Export    ExportConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Driver        string
	SQLitePath    string
	MigrationsDir string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional. An empty URL disables rate limiting.
type RedisConfig struct {
	URL string
}

type RateLimitConfig struct {
	PerMinute int
}

// ExportConfig configures the S3-compatible export archive. An empty Bucket disables it.
type ExportConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
	Prefix    string
}

type MetricsConfig struct {
	Enabled bool
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

var validDrivers = map[string]bool{
	DriverPostgres: true,
	DriverSQLite:   true,
	DriverMemory:   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("SHELTER_PORT", 8080),
			Env:  envString("SHELTER_ENV", "development"),
		},
		Store: StoreConfig{
			Driver:        strings.ToLower(envString("STORE_DRIVER", DriverPostgres)),
			SQLitePath:    envString("SQLITE_PATH", "sheltertrack.db"),
			MigrationsDir: envString("MIGRATIONS_DIR", "migrations"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Export: ExportConfig{
			Bucket:    os.Getenv("EXPORT_S3_BUCKET"),
			Region:    envString("EXPORT_S3_REGION", "us-east-1"),
			Endpoint:  os.Getenv("EXPORT_S3_ENDPOINT"),
			PathStyle: envBool("EXPORT_S3_PATH_STYLE", false),
			Prefix:    envString("EXPORT_S3_PREFIX", "exports/"),
		},
		Metrics: MetricsConfig{
			Enabled: envBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SHELTER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("STORE_DRIVER must be one of postgres, sqlite, memory; got %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverPostgres && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
	}
	if c.Store.Driver == DriverSQLite && c.Store.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is sqlite")
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}
	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimit.PerMinute)
	}

	if c.Export.Endpoint != "" && !strings.HasPrefix(c.Export.Endpoint, "http://") && !strings.HasPrefix(c.Export.Endpoint, "https://") {
		return fmt.Errorf("EXPORT_S3_ENDPOINT must start with http:// or https://, got %q", c.Export.Endpoint)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
