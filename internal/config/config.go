// Package config reads the server's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
)

// Config holds every server setting
type Config struct {
	Port     int
	LogLevel slog.Level

	// StorageType selects the board store backend
	StorageType string
	RedisURL    string
	DatabaseURL string

	// StoreTimeout bounds each store call made while serving a request
	StoreTimeout time.Duration

	// ResetSchedule is a five-field cron spec evaluated in UTC
	ResetSchedule string

	// Optional data files; built-in defaults are used when empty
	RosterFile         string
	CooldownPolicyFile string

	TokenSecret string
	TokenTTL    time.Duration

	// AdminToken guards the admin endpoints; they are disabled when empty
	AdminToken string

	TaskWorkers   int
	TaskQueueSize int

	// AllowedOrigins are the cross-origin hosts allowed to open a websocket
	AllowedOrigins []string
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Port:          8080,
		LogLevel:      slog.LevelInfo,
		StorageType:   StorageTypeMemory,
		StoreTimeout:  2 * time.Second,
		ResetSchedule: "0 0 * * *",
		TokenTTL:      30 * 24 * time.Hour,
		TaskWorkers:   4,
		TaskQueueSize: 256,
	}
}

// FromEnv reads the configuration from the process environment
func FromEnv() (Config, error) {
	return Load(os.LookupEnv)
}

// Load builds a configuration from DefaultConfig and the variables lookup finds
func Load(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	num("PORT", &cfg.Port)
	str("STORAGE_TYPE", &cfg.StorageType)
	str("REDIS_URL", &cfg.RedisURL)
	str("DATABASE_URL", &cfg.DatabaseURL)
	dur("STORE_TIMEOUT", &cfg.StoreTimeout)
	str("RESET_SCHEDULE", &cfg.ResetSchedule)
	str("ROSTER_FILE", &cfg.RosterFile)
	str("COOLDOWN_POLICY_FILE", &cfg.CooldownPolicyFile)
	str("TOKEN_SECRET", &cfg.TokenSecret)
	dur("TOKEN_TTL", &cfg.TokenTTL)
	str("ADMIN_TOKEN", &cfg.AdminToken)
	num("TASK_WORKERS", &cfg.TaskWorkers)
	num("TASK_QUEUE_SIZE", &cfg.TaskQueueSize)

	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		}
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the settings are usable together
func (c Config) Validate() error {
	switch c.StorageType {
	case StorageTypeMemory:
	case StorageTypeRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL required when STORAGE_TYPE=redis")
		}
	case StorageTypePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL required when STORAGE_TYPE=postgres")
		}
	default:
		return fmt.Errorf("invalid STORAGE_TYPE %q: must be memory, redis or postgres", c.StorageType)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.TaskWorkers <= 0 || c.TaskQueueSize <= 0 {
		return errors.New("TASK_WORKERS and TASK_QUEUE_SIZE must be positive")
	}
	return nil
}

// Addr returns the listen address for the HTTP server
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
