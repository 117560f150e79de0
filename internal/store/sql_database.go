package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/threatgate/threatgate/internal/logger"
	"github.com/threatgate/threatgate/migrations"
)

// DB wraps the SQLite connection with the storage circuit breaker. All
// repository I/O goes through exec/query so that consecutive backend
// failures open the breaker and subsequent calls fail fast with
// [ErrStorageUnavailable] instead of hammering a degraded database.
type DB struct {
	*sql.DB
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

// Migrate applies the embedded schema migrations.
func (db *DB) Migrate() error {
	return migrations.Migrate(db.DB)
}

// exec runs a DML statement through the circuit breaker.
func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := db.breaker.Execute(func() (any, error) {
		return db.DB.ExecContext(ctx, query, args...)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return res.(sql.Result), nil
}

// query runs a read-only statement through the circuit breaker. The caller
// owns the returned rows and must close them.
func (db *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	res, err := db.breaker.Execute(func() (any, error) {
		return db.DB.QueryContext(ctx, query, args...)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return res.(*sql.Rows), nil
}

// begin starts a transaction through the circuit breaker.
func (db *DB) begin(ctx context.Context) (*sql.Tx, error) {
	res, err := db.breaker.Execute(func() (any, error) {
		return db.DB.BeginTx(ctx, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBeginningTransaction, mapBreakerErr(err))
	}
	return res.(*sql.Tx), nil
}

// WithinTransaction runs fn inside a single transaction: fn either sees the
// old state on rollback or commits the fully-new state, never a mix. This
// is the multi-statement mutation primitive behind match-and-record and
// quarantine persistence.
func (db *DB) WithinTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.begin(ctx)
	if err != nil {
		return err
	}

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Err(rbErr).
				Str("func", "DB.WithinTransaction").
				Msg("rollback failed after transaction error")
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrCommittingTransaction, err)
	}

	return nil
}

// VerifyIntegrity runs SQLite's integrity check. Any result other than the
// single row "ok" is reported as [ErrIntegrity]. A failed check also counts
// as a breaker failure, so writes after detected corruption fail fast.
func (db *DB) VerifyIntegrity(ctx context.Context) error {
	_, err := db.breaker.Execute(func() (any, error) {
		var result string
		if scanErr := db.DB.QueryRowContext(ctx, "PRAGMA integrity_check;").Scan(&result); scanErr != nil {
			return nil, scanErr
		}
		if result != "ok" {
			return nil, fmt.Errorf("%w: %s", ErrIntegrity, result)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, ErrIntegrity) {
			return err
		}
		return mapBreakerErr(err)
	}
	return nil
}

// IsHealthy reports whether the storage backend currently answers queries
// and the circuit breaker is not open.
func (db *DB) IsHealthy(ctx context.Context) bool {
	if db.breaker.State() == gobreaker.StateOpen {
		return false
	}
	return db.VerifyIntegrity(ctx) == nil
}

// Vacuum rebuilds the database file, reclaiming space left by the retention
// sweeps. Safe to run concurrently with WAL-mode readers.
func (db *DB) Vacuum(ctx context.Context) error {
	if _, err := db.exec(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("vacuum database: %w", err)
	}
	return nil
}

// Backup writes a consistent copy of the database to destPath using
// SQLite's VACUUM INTO. The copy is taken online; WAL-mode readers and
// the single writer are unaffected.
func (db *DB) Backup(ctx context.Context, destPath string) error {
	if _, err := db.exec(ctx, "VACUUM INTO ?;", destPath); err != nil {
		return fmt.Errorf("backup database: %w", err)
	}
	return nil
}

// mapBreakerErr converts breaker-open conditions into the storage
// taxonomy. Ordinary statement errors pass through untouched so domain
// sentinels stay matchable.
func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return err
}
