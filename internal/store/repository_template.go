package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/threatgate/threatgate/internal/logger"
	"github.com/threatgate/threatgate/models"
)

// templateRepository is the SQLite-backed implementation of
// [TemplateRepository].
type templateRepository struct {
	db     *DB
	logger *logger.Logger
}

// NewTemplateRepository constructs a [TemplateRepository] backed by the
// provided database connection and logger.
func NewTemplateRepository(db *DB, logger *logger.Logger) TemplateRepository {
	return &templateRepository{
		db:     db,
		logger: logger,
	}
}

// CreateTemplate implements [TemplateRepository].
func (t *templateRepository) CreateTemplate(ctx context.Context, tpl models.PolicyTemplate) (int64, error) {
	createdAt := tpl.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := t.db.exec(ctx, createTemplate,
		tpl.Name,
		tpl.Version,
		tpl.Category,
		tpl.BuiltIn,
		tpl.RuleName,
		tpl.URLPattern,
		tpl.MimeType,
		string(tpl.Action),
		string(tpl.MatchType),
		tpl.EnforcementAction,
		tpl.Description,
		createdAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: template %q", ErrAlreadyExists, tpl.Name)
		}
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return id, nil
}

// GetTemplateByName implements [TemplateRepository].
func (t *templateRepository) GetTemplateByName(ctx context.Context, name string) (models.PolicyTemplate, error) {
	rows, err := t.db.query(ctx, getTemplateByName, name)
	if err != nil {
		return models.PolicyTemplate{}, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			return models.PolicyTemplate{}, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
		}
		return models.PolicyTemplate{}, fmt.Errorf("%w: template %q", ErrNotFound, name)
	}

	return scanTemplate(rows)
}

// ListTemplates implements [TemplateRepository].
func (t *templateRepository) ListTemplates(ctx context.Context) ([]models.PolicyTemplate, error) {
	rows, err := t.db.query(ctx, listTemplates)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	templates := make([]models.PolicyTemplate, 0, 16)
	for rows.Next() {
		tpl, scanErr := scanTemplate(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		templates = append(templates, tpl)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return templates, nil
}

// UpsertBuiltinTemplate implements [TemplateRepository]. Seeding runs on
// every startup: new built-ins are inserted, existing ones are refreshed
// only when the embedded definition carries a higher version. User-defined
// templates are never touched.
func (t *templateRepository) UpsertBuiltinTemplate(ctx context.Context, tpl models.PolicyTemplate) error {
	tpl.BuiltIn = true

	_, err := t.CreateTemplate(ctx, tpl)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrAlreadyExists) {
		return err
	}

	_, err = t.db.exec(ctx, updateBuiltinTemplate,
		tpl.Version,
		tpl.Category,
		tpl.RuleName,
		tpl.URLPattern,
		tpl.MimeType,
		string(tpl.Action),
		string(tpl.MatchType),
		tpl.EnforcementAction,
		tpl.Description,
		tpl.Name,
		tpl.Version,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return nil
}

func scanTemplate(rows *sql.Rows) (models.PolicyTemplate, error) {
	var (
		tpl       models.PolicyTemplate
		action    string
		matchType string
	)

	err := rows.Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.Version,
		&tpl.Category,
		&tpl.BuiltIn,
		&tpl.RuleName,
		&tpl.URLPattern,
		&tpl.MimeType,
		&action,
		&matchType,
		&tpl.EnforcementAction,
		&tpl.Description,
		&tpl.CreatedAt,
	)
	if err != nil {
		return models.PolicyTemplate{}, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	tpl.Action = models.PolicyAction(action)
	tpl.MatchType = models.MatchType(matchType)

	return tpl, nil
}
