package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/threatgate/threatgate/internal/logger"
	"github.com/threatgate/threatgate/models"
)

// policyRepository is the SQLite-backed implementation of
// [PolicyRepository]. It owns the matcher's strict priority order: a file
// hash match always wins over a URL pattern match, which wins over a rule
// name match. That order is a security property, not a tunable: a hash
// cannot be spoofed by URL manipulation.
type policyRepository struct {
	db     *DB
	logger *logger.Logger
}

// NewPolicyRepository constructs a [PolicyRepository] backed by the
// provided database connection and logger.
func NewPolicyRepository(db *DB, logger *logger.Logger) PolicyRepository {
	return &policyRepository{
		db:     db,
		logger: logger,
	}
}

// CreatePolicy implements [PolicyRepository].
func (p *policyRepository) CreatePolicy(ctx context.Context, policy models.Policy) (int64, error) {
	log := logger.FromContext(ctx)

	res, err := p.db.exec(ctx, createPolicy,
		policy.RuleName,
		policy.URLPattern,
		policy.FileHash,
		policy.MimeType,
		string(policy.Action),
		string(policy.MatchType),
		policy.EnforcementAction,
		policy.CreatedAt.UTC(),
		policy.CreatedBy,
		nullableTime(policy.ExpiresAt),
	)
	if err != nil {
		log.Err(err).
			Str("func", "policyRepository.CreatePolicy").
			Str("rule_name", policy.RuleName).
			Msg("failed to insert policy")
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return id, nil
}

// GetPolicy implements [PolicyRepository].
func (p *policyRepository) GetPolicy(ctx context.Context, id int64) (models.Policy, error) {
	rows, err := p.db.query(ctx, getPolicy, id)
	if err != nil {
		return models.Policy{}, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			return models.Policy{}, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
		}
		return models.Policy{}, fmt.Errorf("%w: policy %d", ErrNotFound, id)
	}

	policy, err := scanPolicy(rows)
	if err != nil {
		return models.Policy{}, err
	}

	return policy, nil
}

// ListPolicies implements [PolicyRepository]. The optional action and
// match-type filters are assembled with squirrel so the WHERE clause only
// carries the conditions actually requested.
func (p *policyRepository) ListPolicies(ctx context.Context, filter ListPoliciesFilter) ([]models.Policy, error) {
	log := logger.FromContext(ctx)

	builder := sq.Select(
		"id", "rule_name", "url_pattern", "file_hash", "mime_type", "action",
		"match_type", "enforcement_action", "created_at", "created_by",
		"expires_at", "hit_count", "last_hit",
	).
		From("policies").
		OrderBy("id DESC")

	if filter.Action != "" {
		builder = builder.Where(sq.Eq{"action": string(filter.Action)})
	}
	if filter.MatchType != "" {
		builder = builder.Where(sq.Eq{"match_type": string(filter.MatchType)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		log.Err(err).
			Str("func", "policyRepository.ListPolicies").
			Msg("failed to build list query")
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := p.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	policies := make([]models.Policy, 0, 32)
	for rows.Next() {
		policy, scanErr := scanPolicy(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		policies = append(policies, policy)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return policies, nil
}

// UpdatePolicy implements [PolicyRepository]. Hit counters are not
// touched here; they belong to the matcher.
func (p *policyRepository) UpdatePolicy(ctx context.Context, id int64, policy models.Policy) error {
	res, err := p.db.exec(ctx, updatePolicy,
		policy.RuleName,
		policy.URLPattern,
		policy.FileHash,
		policy.MimeType,
		string(policy.Action),
		string(policy.MatchType),
		policy.EnforcementAction,
		nullableTime(policy.ExpiresAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: policy %d", ErrNotFound, id)
	}

	return nil
}

// DeletePolicy implements [PolicyRepository].
func (p *policyRepository) DeletePolicy(ctx context.Context, id int64) error {
	res, err := p.db.exec(ctx, deletePolicy, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: policy %d", ErrNotFound, id)
	}

	return nil
}

// MatchPolicy implements [PolicyRepository]. The match is itself a mutating
// observation: finding a policy and recording its hit happen in one
// transaction so the counters can never drift from the matches that
// actually occurred.
func (p *policyRepository) MatchPolicy(ctx context.Context, meta models.ThreatMetadata) (*models.Policy, error) {
	var matched *models.Policy

	err := p.db.WithinTransaction(ctx, func(tx *sql.Tx) error {
		policy, matchErr := matchPolicyTx(ctx, tx, meta)
		if matchErr != nil {
			return matchErr
		}
		matched = policy
		return nil
	})
	if err != nil {
		return nil, err
	}

	return matched, nil
}

// MatchAndRecord implements [PolicyRepository]. The hit-count side effect
// and the threat-history insert share one transaction, so a crash
// mid-sequence leaves either the old or the fully-new state.
func (p *policyRepository) MatchAndRecord(ctx context.Context, meta models.ThreatMetadata, actionTaken models.PolicyAction, verdictBlob []byte) (*models.Policy, int64, error) {
	var (
		matched  *models.Policy
		threatID int64
	)

	err := p.db.WithinTransaction(ctx, func(tx *sql.Tx) error {
		policy, matchErr := matchPolicyTx(ctx, tx, meta)
		if matchErr != nil {
			return matchErr
		}
		matched = policy

		var policyID *int64
		if policy != nil {
			policyID = &policy.ID
		}

		res, insErr := tx.ExecContext(ctx, recordThreat,
			time.Now().UTC(),
			meta.URL,
			meta.Filename,
			meta.FileHash,
			meta.MimeType,
			meta.FileSize,
			meta.RuleName,
			meta.Severity,
			string(actionTaken),
			nullableID(policyID),
			verdictBlob,
		)
		if insErr != nil {
			return fmt.Errorf("%w: %w", ErrExecutingStatement, insErr)
		}

		id, idErr := res.LastInsertId()
		if idErr != nil {
			return fmt.Errorf("%w: %w", ErrExecutingStatement, idErr)
		}
		threatID = id

		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return matched, threatID, nil
}

// RecordPolicyHit implements [PolicyRepository].
func (p *policyRepository) RecordPolicyHit(ctx context.Context, id int64) error {
	res, err := p.db.exec(ctx, recordPolicyHit, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: policy %d", ErrNotFound, id)
	}

	return nil
}

// CleanupExpiredPolicies implements [PolicyRepository].
func (p *policyRepository) CleanupExpiredPolicies(ctx context.Context) (int64, error) {
	res, err := p.db.exec(ctx, cleanupExpiredPolicies, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return removed, nil
}

// matchPolicyTx runs the priority-ordered match inside tx and records the
// hit for whichever policy fired. Returns (nil, nil) when no policy
// matches.
func matchPolicyTx(ctx context.Context, tx *sql.Tx, meta models.ThreatMetadata) (*models.Policy, error) {
	now := time.Now().UTC()

	// Priority 1: exact file-hash match. Unambiguous, cannot be spoofed
	// by URL manipulation.
	if meta.FileHash != "" {
		policy, err := matchOneTx(ctx, tx, matchPolicyByHash, meta.FileHash, now)
		if err != nil {
			return nil, err
		}
		if policy != nil {
			return recordHitTx(ctx, tx, policy, now)
		}
	}

	// Priority 2: URL pattern (SQL LIKE dialect, evaluated by SQLite).
	if meta.URL != "" {
		policy, err := matchOneTx(ctx, tx, matchPolicyByURLPattern, meta.URL, now)
		if err != nil {
			return nil, err
		}
		if policy != nil {
			return recordHitTx(ctx, tx, policy, now)
		}
	}

	// Priority 3: exact rule-name match, the fallback category rule.
	if meta.RuleName != "" {
		policy, err := matchOneTx(ctx, tx, matchPolicyByRuleName, meta.RuleName, now)
		if err != nil {
			return nil, err
		}
		if policy != nil {
			return recordHitTx(ctx, tx, policy, now)
		}
	}

	return nil, nil
}

func matchOneTx(ctx context.Context, tx *sql.Tx, query string, key any, now time.Time) (*models.Policy, error) {
	rows, err := tx.QueryContext(ctx, query, key, now)
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

	policy, err := scanPolicy(rows)
	if err != nil {
		return nil, err
	}

	return &policy, nil
}

func recordHitTx(ctx context.Context, tx *sql.Tx, policy *models.Policy, now time.Time) (*models.Policy, error) {
	if _, err := tx.ExecContext(ctx, recordPolicyHit, now, policy.ID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	policy.HitCount++
	policy.LastHit = &now

	return policy, nil
}

// rowScanner is satisfied by both *sql.Rows and *sql.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (models.Policy, error) {
	var (
		policy    models.Policy
		expiresAt sql.NullTime
		lastHit   sql.NullTime
		action    string
		matchType string
	)

	err := row.Scan(
		&policy.ID,
		&policy.RuleName,
		&policy.URLPattern,
		&policy.FileHash,
		&policy.MimeType,
		&action,
		&matchType,
		&policy.EnforcementAction,
		&policy.CreatedAt,
		&policy.CreatedBy,
		&expiresAt,
		&policy.HitCount,
		&lastHit,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Policy{}, ErrNotFound
		}
		return models.Policy{}, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	policy.Action = models.PolicyAction(action)
	policy.MatchType = models.MatchType(matchType)
	if expiresAt.Valid {
		t := expiresAt.Time
		policy.ExpiresAt = &t
	}
	if lastHit.Valid {
		t := lastHit.Time
		policy.LastHit = &t
	}

	return policy, nil
}

// nullableTime converts an optional timestamp into a driver-friendly value.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// nullableID converts an optional row id into a driver-friendly value.
func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
