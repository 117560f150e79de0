package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/threatgate/threatgate/internal/config"
	"github.com/threatgate/threatgate/internal/logger"
)

// NewConnectSQLite opens (and creates if absent) the SQLite database at
// cfg.DBPath and returns it wrapped in [*DB] with the circuit breaker
// configured from breakerCfg.
//
// The connection uses WAL journal mode so long-running reads never block a
// concurrent policy write, plus a busy timeout to absorb short writer
// collisions and enforced foreign keys.
func NewConnectSQLite(ctx context.Context, cfg config.Storage, breakerCfg config.Breaker, log *logger.Logger) (*DB, error) {
	if err := createLocalDBFileIfNotExists(cfg.DBPath); err != nil {
		log.Err(err).Str("func", "NewConnectSQLite").Msg("error creating database file")
		return nil, fmt.Errorf("error creating database file")
	}

	busyMillis := cfg.BusyTimeout.Milliseconds()
	if busyMillis <= 0 {
		busyMillis = config.DefaultBusyTimeout.Milliseconds()
	}

	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
		cfg.DBPath, busyMillis,
	)

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.Err(err).Str("func", "NewConnectSQLite").Msg("error connecting database")
		return nil, fmt.Errorf("error opening connection to DB")
	}

	// ping database
	if err = conn.PingContext(ctx); err != nil {
		log.Err(err).Str("func", "NewConnectSQLite").Msg("error connecting database (ping)")
		return nil, err
	}
	log.Debug().Str("func", "NewConnectSQLite").Msg("connected to database successfully")

	db := &DB{
		DB:      conn,
		breaker: newStorageBreaker(breakerCfg.MaxFailures, breakerCfg.Cooldown, log),
		logger:  log,
	}

	return db, nil
}

func createLocalDBFileIfNotExists(dbFile string) error {
	if _, err := os.Stat(dbFile); os.IsNotExist(err) {
		// if not found - create
		f, err := os.Create(dbFile)
		if err != nil {
			return fmt.Errorf("error creating DB file: %w", err)
		}
		f.Close()
	}

	// file already exists
	return nil
}
