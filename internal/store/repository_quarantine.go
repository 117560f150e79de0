package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/threatgate/threatgate/internal/logger"
	"github.com/threatgate/threatgate/models"
)

// quarantineRepository is the SQLite-backed implementation of
// [QuarantineRepository]. The UNIQUE constraint on sha256_hash enforces the
// dedup invariant: the same content is never quarantined twice while a
// record for it exists.
type quarantineRepository struct {
	db     *DB
	logger *logger.Logger
}

// NewQuarantineRepository constructs a [QuarantineRepository] backed by the
// provided database connection and logger.
func NewQuarantineRepository(db *DB, logger *logger.Logger) QuarantineRepository {
	return &quarantineRepository{
		db:     db,
		logger: logger,
	}
}

// CreateQuarantineRecord implements [QuarantineRepository].
func (q *quarantineRepository) CreateQuarantineRecord(ctx context.Context, rec models.QuarantineRecord) (int64, error) {
	log := logger.FromContext(ctx)

	res, err := q.db.exec(ctx, createQuarantineRecord,
		rec.OriginalPath,
		rec.QuarantinePath,
		rec.Reason,
		rec.ThreatScore,
		string(rec.ThreatLevel),
		rec.QuarantinedAt.UTC(),
		rec.FileSize,
		rec.SHA256Hash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: hash %s", ErrAlreadyQuarantined, rec.SHA256Hash)
		}
		log.Err(err).
			Str("func", "quarantineRepository.CreateQuarantineRecord").
			Str("sha256_hash", rec.SHA256Hash).
			Msg("failed to insert quarantine record")
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return id, nil
}

// GetQuarantineRecord implements [QuarantineRepository].
func (q *quarantineRepository) GetQuarantineRecord(ctx context.Context, id int64) (models.QuarantineRecord, error) {
	rows, err := q.db.query(ctx, getQuarantineRecord, id)
	if err != nil {
		return models.QuarantineRecord{}, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			return models.QuarantineRecord{}, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
		}
		return models.QuarantineRecord{}, fmt.Errorf("%w: quarantine record %d", ErrNotFound, id)
	}

	return scanQuarantineRecord(rows)
}

// FindQuarantineRecordByHash implements [QuarantineRepository].
func (q *quarantineRepository) FindQuarantineRecordByHash(ctx context.Context, sha256Hash string) (*models.QuarantineRecord, error) {
	rows, err := q.db.query(ctx, findQuarantineRecordByHash, sha256Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
		}
		return nil, nil
	}

	rec, err := scanQuarantineRecord(rows)
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// ListQuarantineRecords implements [QuarantineRepository].
func (q *quarantineRepository) ListQuarantineRecords(ctx context.Context, level models.ThreatLevel) ([]models.QuarantineRecord, error) {
	builder := sq.Select(
		"id", "original_path", "quarantine_path", "quarantine_reason",
		"threat_score", "threat_level", "quarantined_at", "file_size",
		"sha256_hash",
	).
		From("quarantine_records").
		OrderBy("quarantined_at DESC", "id DESC")

	if level != "" {
		builder = builder.Where(sq.Eq{"threat_level": string(level)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := q.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	records := make([]models.QuarantineRecord, 0, 32)
	for rows.Next() {
		rec, scanErr := scanQuarantineRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return records, nil
}

// DeleteQuarantineRecord implements [QuarantineRepository].
func (q *quarantineRepository) DeleteQuarantineRecord(ctx context.Context, id int64) error {
	res, err := q.db.exec(ctx, deleteQuarantineRecord, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: quarantine record %d", ErrNotFound, id)
	}

	return nil
}

// QuarantineTotals implements [QuarantineRepository].
func (q *quarantineRepository) QuarantineTotals(ctx context.Context) (int64, int64, error) {
	rows, err := q.db.query(ctx, quarantineTotals)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var count, sizeBytes int64
	if rows.Next() {
		if scanErr := rows.Scan(&count, &sizeBytes); scanErr != nil {
			return 0, 0, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return count, sizeBytes, nil
}

func scanQuarantineRecord(rows *sql.Rows) (models.QuarantineRecord, error) {
	var (
		rec   models.QuarantineRecord
		level string
	)

	err := rows.Scan(
		&rec.ID,
		&rec.OriginalPath,
		&rec.QuarantinePath,
		&rec.Reason,
		&rec.ThreatScore,
		&level,
		&rec.QuarantinedAt,
		&rec.FileSize,
		&rec.SHA256Hash,
	)
	if err != nil {
		return models.QuarantineRecord{}, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	rec.ThreatLevel = models.ThreatLevel(level)

	return rec, nil
}
