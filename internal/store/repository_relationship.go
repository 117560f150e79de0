package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/threatgate/threatgate/internal/logger"
	"github.com/threatgate/threatgate/models"
)

// relationshipRepository is the SQLite-backed implementation of
// [RelationshipRepository]. The (form_origin, action_origin,
// relationship_type) uniqueness invariant is enforced by the table
// constraint, which also makes relationship import idempotent.
type relationshipRepository struct {
	db     *DB
	logger *logger.Logger
}

// NewRelationshipRepository constructs a [RelationshipRepository] backed by
// the provided database connection and logger.
func NewRelationshipRepository(db *DB, logger *logger.Logger) RelationshipRepository {
	return &relationshipRepository{
		db:     db,
		logger: logger,
	}
}

// CreateRelationship implements [RelationshipRepository].
func (r *relationshipRepository) CreateRelationship(ctx context.Context, rel models.CredentialRelationship) (int64, error) {
	log := logger.FromContext(ctx)

	res, err := r.db.exec(ctx, createRelationship,
		rel.FormOrigin,
		rel.ActionOrigin,
		string(rel.Type),
		rel.CreatedAt.UTC(),
		rel.CreatedBy,
		nullableTime(rel.ExpiresAt),
		rel.Notes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: relationship %s -> %s (%s)",
				ErrAlreadyExists, rel.FormOrigin, rel.ActionOrigin, rel.Type)
		}
		log.Err(err).
			Str("func", "relationshipRepository.CreateRelationship").
			Str("form_origin", rel.FormOrigin).
			Str("action_origin", rel.ActionOrigin).
			Msg("failed to insert relationship")
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return id, nil
}

// HasRelationship implements [RelationshipRepository]. Like the policy
// matcher, a successful consult is a mutating observation: the usage
// counters are bumped in the same transaction as the lookup.
func (r *relationshipRepository) HasRelationship(ctx context.Context, formOrigin, actionOrigin string, relType models.RelationshipType) (bool, error) {
	found := false

	err := r.db.WithinTransaction(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		var id int64
		scanErr := tx.QueryRowContext(ctx, findRelationship,
			formOrigin, actionOrigin, string(relType), now).Scan(&id)
		if scanErr == sql.ErrNoRows {
			return nil
		}
		if scanErr != nil {
			return fmt.Errorf("%w: %w", ErrExecutingQuery, scanErr)
		}

		if _, execErr := tx.ExecContext(ctx, updateRelationshipUsage, now, id); execErr != nil {
			return fmt.Errorf("%w: %w", ErrExecutingStatement, execErr)
		}

		found = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return found, nil
}

// UpdateRelationshipUsage implements [RelationshipRepository].
func (r *relationshipRepository) UpdateRelationshipUsage(ctx context.Context, id int64) error {
	res, err := r.db.exec(ctx, updateRelationshipUsage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: relationship %d", ErrNotFound, id)
	}

	return nil
}

// DeleteRelationship implements [RelationshipRepository].
func (r *relationshipRepository) DeleteRelationship(ctx context.Context, id int64) error {
	res, err := r.db.exec(ctx, deleteRelationship, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: relationship %d", ErrNotFound, id)
	}

	return nil
}

// ListRelationships implements [RelationshipRepository].
func (r *relationshipRepository) ListRelationships(ctx context.Context) ([]models.CredentialRelationship, error) {
	rows, err := r.db.query(ctx, listRelationships)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	rels := make([]models.CredentialRelationship, 0, 32)
	for rows.Next() {
		var (
			rel       models.CredentialRelationship
			relType   string
			lastUsed  sql.NullTime
			expiresAt sql.NullTime
		)

		scanErr := rows.Scan(
			&rel.ID,
			&rel.FormOrigin,
			&rel.ActionOrigin,
			&relType,
			&rel.CreatedAt,
			&rel.CreatedBy,
			&lastUsed,
			&rel.UseCount,
			&expiresAt,
			&rel.Notes,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}

		rel.Type = models.RelationshipType(relType)
		if lastUsed.Valid {
			t := lastUsed.Time
			rel.LastUsed = &t
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			rel.ExpiresAt = &t
		}

		rels = append(rels, rel)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return rels, nil
}
