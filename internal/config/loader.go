package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "LINGOTRACK_"
	envConfigPath = "LINGOTRACK_CONFIG"
)

type loadOptions struct {
	dotEnvPath string
}

// LoadOption adjusts how Load finds its sources.
type LoadOption func(*loadOptions)

// WithDotEnv sets the .env file preloaded into the environment. An empty
// path disables the preload.
func WithDotEnv(path string) LoadOption {
	return func(o *loadOptions) {
		o.dotEnvPath = path
	}
}

// Load builds a Config by layering, from low to high precedence:
//  1. defaults (New)
//  2. the YAML file named by LINGOTRACK_CONFIG, if set
//  3. LINGOTRACK_* environment variables, including those preloaded from .env
func Load(_ context.Context, opts ...LoadOption) (*Config, error) {
	o := loadOptions{dotEnvPath: ".env"}
	for _, opt := range opts {
		opt(&o)
	}

	// godotenv never overrides variables that are already set.
	if o.dotEnvPath != "" {
		if err := godotenv.Load(o.dotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, o.dotEnvPath, err)
		}
	}

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// LINGOTRACK_QUEUE_SIZE -> queue_size. Keys are flat, so underscores stay.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that would keep the process from
// starting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBDriver != "postgres" && c.DBDriver != "sqlite":
		return fmt.Errorf("%w: unknown db_driver %q", ErrInvalidConfig, c.DBDriver)
	case strings.TrimSpace(c.DBDSN) == "":
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize < 0:
		return fmt.Errorf("%w: dedupe_size must not be negative", ErrInvalidConfig)
	case c.CatalogCacheTTLSeconds < 0:
		return fmt.Errorf("%w: catalog_cache_ttl_seconds must not be negative", ErrInvalidConfig)
	case c.DBConnMaxLifetimeSeconds < 0:
		return fmt.Errorf("%w: db_conn_max_lifetime_seconds must not be negative", ErrInvalidConfig)
	case !validSQLLogLevel(c.DBLogLevel):
		return fmt.Errorf("%w: unknown db_log_level %q", ErrInvalidConfig, c.DBLogLevel)
	}
	return nil
}

func validSQLLogLevel(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "silent", "error", "warn", "warning", "info":
		return true
	}
	return false
}
