package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/threatgate/threatgate/internal/logger"
	"github.com/threatgate/threatgate/models"
)

// threatRepository is the SQLite-backed implementation of
// [ThreatRepository]. Both tables it owns are append-only; rows leave only
// through the explicit retention sweep.
type threatRepository struct {
	db     *DB
	logger *logger.Logger
}

// NewThreatRepository constructs a [ThreatRepository] backed by the
// provided database connection and logger.
func NewThreatRepository(db *DB, logger *logger.Logger) ThreatRepository {
	return &threatRepository{
		db:     db,
		logger: logger,
	}
}

// RecordThreat implements [ThreatRepository].
func (t *threatRepository) RecordThreat(ctx context.Context, rec models.ThreatRecord) (int64, error) {
	log := logger.FromContext(ctx)

	detectedAt := rec.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}

	res, err := t.db.exec(ctx, recordThreat,
		detectedAt.UTC(),
		rec.URL,
		rec.Filename,
		rec.FileHash,
		rec.MimeType,
		rec.FileSize,
		rec.RuleName,
		rec.Severity,
		string(rec.ActionTaken),
		nullableID(rec.PolicyID),
		rec.VerdictBlob,
	)
	if err != nil {
		log.Err(err).
			Str("func", "threatRepository.RecordThreat").
			Str("file_hash", rec.FileHash).
			Msg("failed to insert threat record")
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return id, nil
}

// ListThreats implements [ThreatRepository].
func (t *threatRepository) ListThreats(ctx context.Context, limit int) ([]models.ThreatRecord, error) {
	builder := sq.Select(
		"id", "detected_at", "url", "filename", "file_hash", "mime_type",
		"file_size", "rule_name", "severity", "action_taken", "policy_id",
		"verdict_blob",
	).
		From("threat_history").
		OrderBy("detected_at DESC", "id DESC")

	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := t.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	records := make([]models.ThreatRecord, 0, 32)
	for rows.Next() {
		var (
			rec      models.ThreatRecord
			action   string
			policyID sql.NullInt64
		)

		scanErr := rows.Scan(
			&rec.ID,
			&rec.DetectedAt,
			&rec.URL,
			&rec.Filename,
			&rec.FileHash,
			&rec.MimeType,
			&rec.FileSize,
			&rec.RuleName,
			&rec.Severity,
			&action,
			&policyID,
			&rec.VerdictBlob,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}

		rec.ActionTaken = models.PolicyAction(action)
		if policyID.Valid {
			id := policyID.Int64
			rec.PolicyID = &id
		}

		records = append(records, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return records, nil
}

// CleanupOldThreats implements [ThreatRepository]. Retention is by age
// only; business logic never prunes the history.
func (t *threatRepository) CleanupOldThreats(ctx context.Context, retainDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retainDays)

	res, err := t.db.exec(ctx, cleanupOldThreats, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return removed, nil
}

// RecordAlert implements [ThreatRepository]. Indicator tags are stored as
// a JSON array in a single column; they are only ever read back whole.
func (t *threatRepository) RecordAlert(ctx context.Context, alert models.CredentialAlert) (int64, error) {
	detectedAt := alert.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}

	indicators, err := json.Marshal(alert.Indicators)
	if err != nil {
		return 0, fmt.Errorf("%w: encode indicators: %w", ErrValidation, err)
	}

	res, err := t.db.exec(ctx, recordAlert,
		detectedAt.UTC(),
		alert.FormOrigin,
		alert.ActionOrigin,
		alert.HasPasswordField,
		alert.HasEmailField,
		alert.UsesHTTPS,
		alert.IsCrossOrigin,
		alert.Severity,
		string(alert.Decision),
		alert.AnomalyScore,
		string(indicators),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return id, nil
}

// ListAlerts implements [ThreatRepository].
func (t *threatRepository) ListAlerts(ctx context.Context, limit int) ([]models.CredentialAlert, error) {
	builder := sq.Select(
		"id", "detected_at", "form_origin", "action_origin",
		"has_password_field", "has_email_field", "uses_https",
		"is_cross_origin", "severity", "decision", "anomaly_score",
		"indicators",
	).
		From("credential_alerts").
		OrderBy("detected_at DESC", "id DESC")

	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := t.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	alerts := make([]models.CredentialAlert, 0, 32)
	for rows.Next() {
		var (
			alert      models.CredentialAlert
			decision   string
			indicators string
		)

		scanErr := rows.Scan(
			&alert.ID,
			&alert.DetectedAt,
			&alert.FormOrigin,
			&alert.ActionOrigin,
			&alert.HasPasswordField,
			&alert.HasEmailField,
			&alert.UsesHTTPS,
			&alert.IsCrossOrigin,
			&alert.Severity,
			&decision,
			&alert.AnomalyScore,
			&indicators,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}

		alert.Decision = models.AlertDecision(decision)
		if indicators != "" {
			if umErr := json.Unmarshal([]byte(indicators), &alert.Indicators); umErr != nil {
				return nil, fmt.Errorf("%w: decode indicators: %w", ErrScanningRow, umErr)
			}
		}

		alerts = append(alerts, alert)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return alerts, nil
}
