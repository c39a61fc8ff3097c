package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/logger"
)

// Option applies a configuration option to the GormStore.
type Option func(*GormStore)

// WithIDGenerator replaces the v7 UUID generator used for new rows.
func WithIDGenerator(fn func() string) Option {
	return func(s *GormStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func newUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// DBOption configures Open.
type DBOption func(*dbConfig)

type dbConfig struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	logLevel        logger.LogLevel
}

// WithMaxOpenConns limits open connections. Zero means unlimited.
func WithMaxOpenConns(n int) DBOption {
	return func(c *dbConfig) {
		if n >= 0 {
			c.maxOpenConns = n
		}
	}
}

// WithConnMaxLifetime bounds the lifetime of pooled connections.
func WithConnMaxLifetime(d time.Duration) DBOption {
	return func(c *dbConfig) {
		if d > 0 {
			c.connMaxLifetime = d
		}
	}
}

// WithSQLLogLevel sets the gorm logger level.
func WithSQLLogLevel(level logger.LogLevel) DBOption {
	return func(c *dbConfig) {
		c.logLevel = level
	}
}

// ParseSQLLogLevel maps silent, error, warn or info to a gorm log level.
// An empty name means error.
func ParseSQLLogLevel(name string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "silent":
		return logger.Silent, nil
	case "", "error":
		return logger.Error, nil
	case "warn", "warning":
		return logger.Warn, nil
	case "info":
		return logger.Info, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLogLevel, name)
	}
}
