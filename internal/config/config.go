// Package config loads runtime settings from the environment
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config validation errors
var (
	ErrMissingAPIURL      = errors.New("FEED_API_URL is required")
	ErrInvalidPageLimit   = errors.New("FEED_PAGE_LIMIT must be positive")
	ErrUnknownBackend     = errors.New("unknown STORAGE_BACKEND")
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required for the postgres backend")
	ErrMissingRedisURL    = errors.New("REDIS_URL is required for the redis backend")
	ErrInvalidLogFormat   = errors.New("LOG_FORMAT must be text or json")
)

// Config holds every setting of the sideline binary
type Config struct {
	Feed struct {
		APIURL            string        `envconfig:"FEED_API_URL"`
		AccessToken       string        `envconfig:"FEED_ACCESS_TOKEN"`
		PageLimit         int           `envconfig:"FEED_PAGE_LIMIT" default:"5"`
		BlockedLoadDelay  time.Duration `envconfig:"FEED_BLOCKED_LOAD_DELAY" default:"3s"`
		BlockedRefreshMax time.Duration `envconfig:"FEED_BLOCKED_REFRESH_MAX" default:"5m"`
		SnapshotMaxAge    time.Duration `envconfig:"FEED_SNAPSHOT_MAX_AGE" default:"24h"`
		APITimeout        time.Duration `envconfig:"FEED_API_TIMEOUT" default:"15s"`
		APIRequestsPerSec float64       `envconfig:"FEED_API_RPS" default:"5"`
	} `envconfig:""`

	Storage struct {
		Backend        string `envconfig:"STORAGE_BACKEND" default:"sqlite"`
		SQLitePath     string `envconfig:"SQLITE_PATH" default:"data/sideline.db"`
		DatabaseURL    string `envconfig:"DATABASE_URL"`
		RedisURL       string `envconfig:"REDIS_URL"`
		RedisPrefix    string `envconfig:"REDIS_PREFIX" default:"sideline:"`
		MemoryCapacity int    `envconfig:"MEMORY_CAPACITY" default:"256"`
	} `envconfig:""`

	HTTP struct {
		Port            int           `envconfig:"HTTP_PORT" default:"8089"`
		ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info"`
		Format string `envconfig:"LOG_FORMAT" default:"text"`
	} `envconfig:""`

	// RefreshCron is empty to disable background refresh
	RefreshCron string `envconfig:"REFRESH_CRON" default:"@every 5m"`
}

// Load reads the environment and validates the result
func Load() (Config, error) {
	cfg, err := process()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadLocal is Load for commands that only touch local storage; FEED_API_URL
// may be unset.
func LoadLocal() (Config, error) {
	cfg, err := process()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validateLocal(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func process() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	return cfg, nil
}

// Validate checks that the settings are usable together
func (c Config) Validate() error {
	if c.Feed.APIURL == "" {
		return ErrMissingAPIURL
	}
	return c.validateLocal()
}

func (c Config) validateLocal() error {
	if c.Feed.PageLimit <= 0 {
		return ErrInvalidPageLimit
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			return ErrMissingDatabaseURL
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			return ErrMissingRedisURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Storage.Backend)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return ErrInvalidLogFormat
	}
	return nil
}
