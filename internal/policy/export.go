package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/threatgate/threatgate/internal/store"
	"github.com/threatgate/threatgate/models"
)

// exportVersion tags every snapshot so future format changes stay
// distinguishable on import.
const exportVersion = 1

// RelationshipSnapshot is the JSON export format for credential trust
// grants.
type RelationshipSnapshot struct {
	SnapshotID    string                          `json:"snapshot_id"`
	Version       int                             `json:"version"`
	ExportedAt    time.Time                       `json:"exported_at"`
	Relationships []models.CredentialRelationship `json:"relationships"`
}

// TemplateSnapshot is the JSON export format for policy templates.
type TemplateSnapshot struct {
	SnapshotID string                  `json:"snapshot_id"`
	Version    int                     `json:"version"`
	ExportedAt time.Time               `json:"exported_at"`
	Templates  []models.PolicyTemplate `json:"templates"`
}

// ImportResult reports what an import actually did. Skipped counts entries
// already present; importing a snapshot twice is a no-op for the second run.
type ImportResult struct {
	Imported int
	Skipped  int
}

// ExportRelationshipsJSON serializes every trust grant into a snapshot.
func (g *Graph) ExportRelationshipsJSON(ctx context.Context) ([]byte, error) {
	rels, err := g.stores.Relationships.ListRelationships(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := RelationshipSnapshot{
		SnapshotID:    uuid.NewString(),
		Version:       exportVersion,
		ExportedAt:    time.Now().UTC(),
		Relationships: rels,
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal relationship snapshot: %w", err)
	}
	return data, nil
}

// ImportRelationshipsJSON loads a snapshot produced by
// [Graph.ExportRelationshipsJSON]. Grants whose (form origin, action
// origin, type) triple already exists are skipped, which makes the import
// idempotent.
func (g *Graph) ImportRelationshipsJSON(ctx context.Context, data []byte) (ImportResult, error) {
	var snapshot RelationshipSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return ImportResult{}, fmt.Errorf("%w: malformed relationship snapshot: %w", store.ErrValidation, err)
	}

	var result ImportResult
	for _, rel := range snapshot.Relationships {
		rel.ID = 0
		if err := validateRelationship(rel); err != nil {
			return result, err
		}

		_, err := g.stores.Relationships.CreateRelationship(ctx, rel)
		switch {
		case err == nil:
			result.Imported++
		case errors.Is(err, store.ErrAlreadyExists):
			result.Skipped++
		default:
			return result, err
		}
	}

	return result, nil
}

// ExportTemplatesJSON serializes every stored template into a snapshot.
func (g *Graph) ExportTemplatesJSON(ctx context.Context) ([]byte, error) {
	tpls, err := g.stores.Templates.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := TemplateSnapshot{
		SnapshotID: uuid.NewString(),
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		Templates:  tpls,
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal template snapshot: %w", err)
	}
	return data, nil
}

// ImportTemplatesJSON loads a snapshot produced by
// [Graph.ExportTemplatesJSON]. Templates whose name already exists are
// skipped.
func (g *Graph) ImportTemplatesJSON(ctx context.Context, data []byte) (ImportResult, error) {
	var snapshot TemplateSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return ImportResult{}, fmt.Errorf("%w: malformed template snapshot: %w", store.ErrValidation, err)
	}

	var result ImportResult
	for _, tpl := range snapshot.Templates {
		tpl.ID = 0

		_, err := g.CreateTemplate(ctx, tpl)
		switch {
		case err == nil:
			result.Imported++
		case errors.Is(err, store.ErrAlreadyExists):
			result.Skipped++
		default:
			return result, err
		}
	}

	return result, nil
}
