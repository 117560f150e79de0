package config

import (
	"time"
)

// Config is the top-level configuration container for the quarantine
// engine. It aggregates all sub-configurations and is populated by merging
// values from environment variables and command-line flags.
//
// Struct tags:
//   - envPrefix: prefix applied to all nested env tag lookups (caarlos0/env).
//   - env: direct environment variable name for scalar fields.
type Config struct {
	// Storage holds the SQLite database settings.
	Storage Storage `envPrefix:"STORAGE_"`

	// Quarantine holds the quarantine directory and retention settings.
	Quarantine Quarantine `envPrefix:"QUARANTINE_"`

	// Cache holds the policy lookup cache settings.
	Cache Cache `envPrefix:"CACHE_"`

	// Breaker holds the storage circuit-breaker settings.
	Breaker Breaker `envPrefix:"BREAKER_"`
}

// Storage holds the configuration of the persistent policy store.
type Storage struct {
	// DBPath is the SQLite database file path.
	// Env: STORAGE_DB_PATH
	DBPath string `env:"DB_PATH"`

	// BusyTimeout is how long a connection waits on a locked database
	// before failing. SQLite WAL mode allows concurrent readers with a
	// single writer; the busy timeout absorbs short writer collisions.
	// Env: STORAGE_BUSY_TIMEOUT
	BusyTimeout time.Duration `env:"BUSY_TIMEOUT"`
}

// Quarantine holds the quarantine area settings.
type Quarantine struct {
	// Dir is the directory holding encrypted blobs and the key file.
	// Created with owner-only permissions on first run.
	// Env: QUARANTINE_DIR
	Dir string `env:"DIR"`

	// Retention is how long quarantined files are kept before the
	// cleanup sweep removes them.
	// Env: QUARANTINE_RETENTION
	Retention time.Duration `env:"RETENTION"`

	// CleanupInterval is how often the background cleanup job runs.
	// Zero disables the job.
	// Env: QUARANTINE_CLEANUP_INTERVAL
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL"`
}

// Cache holds the policy lookup cache settings.
type Cache struct {
	// Size is the LRU capacity for recent policy match lookups.
	// Env: CACHE_SIZE
	Size int `env:"SIZE"`
}

// Breaker holds the storage circuit-breaker settings.
type Breaker struct {
	// MaxFailures is the number of consecutive storage failures after
	// which the breaker opens.
	// Env: BREAKER_MAX_FAILURES
	MaxFailures uint32 `env:"MAX_FAILURES"`

	// Cooldown is how long the breaker stays open before probing the
	// storage backend again.
	// Env: BREAKER_COOLDOWN
	Cooldown time.Duration `env:"COOLDOWN"`
}

// Defaults applied by GetConfig when neither environment nor flags provide
// a value.
const (
	DefaultDBPath          = "threatgate.db"
	DefaultQuarantineDir   = "quarantine"
	DefaultBusyTimeout     = 5 * time.Second
	DefaultRetention       = 30 * 24 * time.Hour
	DefaultCleanupInterval = time.Hour
	DefaultCacheSize       = 1000
	DefaultMaxFailures     = 3
	DefaultCooldown        = 30 * time.Second
)

// applyDefaults fills every unset field with its default value.
func (cfg *Config) applyDefaults() {
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = DefaultDBPath
	}
	if cfg.Storage.BusyTimeout <= 0 {
		cfg.Storage.BusyTimeout = DefaultBusyTimeout
	}
	if cfg.Quarantine.Dir == "" {
		cfg.Quarantine.Dir = DefaultQuarantineDir
	}
	if cfg.Quarantine.Retention <= 0 {
		cfg.Quarantine.Retention = DefaultRetention
	}
	if cfg.Cache.Size <= 0 {
		cfg.Cache.Size = DefaultCacheSize
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = DefaultMaxFailures
	}
	if cfg.Breaker.Cooldown <= 0 {
		cfg.Breaker.Cooldown = DefaultCooldown
	}
}

// validate checks that the final merged [Config] satisfies the engine's
// invariants before it is used at startup.
func (cfg *Config) validate() error {
	if cfg.Storage.DBPath == "" {
		return ErrInvalidStorageConfigs
	}
	if cfg.Quarantine.Dir == "" || cfg.Quarantine.Retention <= 0 {
		return ErrInvalidQuarantineConfigs
	}
	return nil
}
