// Package config defines process configuration and how it is loaded.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBDriver selects the database dialect: postgres or sqlite.
	DBDriver string `koanf:"db_driver"`
	// DBDSN is passed to the driver unchanged.
	DBDSN string `koanf:"db_dsn"`
	// DBAutoMigrate creates the progress, catalog and plan tables on start.
	// Meant for development databases.
	DBAutoMigrate  bool `koanf:"db_auto_migrate"`
	DBMaxOpenConns int  `koanf:"db_max_open_conns"`
	// DBConnMaxLifetimeSeconds recycles pooled connections. Zero keeps the default.
	DBConnMaxLifetimeSeconds int `koanf:"db_conn_max_lifetime_seconds"`
	// DBLogLevel sets SQL logging: silent, error, warn or info.
	DBLogLevel string `koanf:"db_log_level"`

	// RedisAddr enables the catalog cache when set.
	RedisAddr              string `koanf:"redis_addr"`
	RedisPassword          string `koanf:"redis_password"`
	RedisDB                int    `koanf:"redis_db"`
	CatalogCacheTTLSeconds int    `koanf:"catalog_cache_ttl_seconds"`

	// EventQueueSize bounds the in-memory progress event queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of event workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the number of remembered event ids.
	DedupeSize int `koanf:"dedupe_size"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		Addr:                     ":8080",
		DBDriver:                 "sqlite",
		DBDSN:                    "file:lingotrack.db?_busy_timeout=5000",
		DBAutoMigrate:            false,
		DBMaxOpenConns:           20,
		DBConnMaxLifetimeSeconds: 1800,
		DBLogLevel:               "error",
		CatalogCacheTTLSeconds:   600,
		EventQueueSize:           10_000,
		WorkerCount:              8,
		DedupeSize:               50_000,
	}
}
