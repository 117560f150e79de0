package config

import (
	"flag"
	"time"
)

// ParseFlags parses all configuration flags.
//
// Flags:
//
//	-d database file path
//	-q quarantine directory
//	-busy-timeout SQLite busy timeout (e.g. "5s")
//	-retention quarantine retention period (e.g. "720h")
//	-cleanup-interval background cleanup interval (0 disables the job)
//	-cache-size policy lookup cache capacity
//	-breaker-max-failures consecutive failures before the breaker opens
//	-breaker-cooldown breaker open duration before a probe
func ParseFlags() *Config {
	var dbPath string
	var busyTimeout time.Duration
	var quarantineDir string
	var retention time.Duration
	var cleanupInterval time.Duration
	var cacheSize int
	var breakerMaxFailures uint
	var breakerCooldown time.Duration

	flag.StringVar(&dbPath, "d", "", "Database file path")
	flag.DurationVar(&busyTimeout, "busy-timeout", 0, "SQLite busy timeout (e.g. 5s)")
	flag.StringVar(&quarantineDir, "q", "", "Quarantine directory")
	flag.DurationVar(&retention, "retention", 0, "Quarantine retention period (e.g. 720h)")
	flag.DurationVar(&cleanupInterval, "cleanup-interval", 0, "Background cleanup interval (0 disables)")
	flag.IntVar(&cacheSize, "cache-size", 0, "Policy lookup cache capacity")
	flag.UintVar(&breakerMaxFailures, "breaker-max-failures", 0, "Consecutive failures before the breaker opens")
	flag.DurationVar(&breakerCooldown, "breaker-cooldown", 0, "Breaker open duration before a probe")

	flag.Parse()

	return &Config{
		Storage: Storage{
			DBPath:      dbPath,
			BusyTimeout: busyTimeout,
		},
		Quarantine: Quarantine{
			Dir:             quarantineDir,
			Retention:       retention,
			CleanupInterval: cleanupInterval,
		},
		Cache: Cache{
			Size: cacheSize,
		},
		Breaker: Breaker{
			MaxFailures: uint32(breakerMaxFailures),
			Cooldown:    breakerCooldown,
		},
	}
}
