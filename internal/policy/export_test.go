package policy

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatgate/threatgate/internal/store"
	"github.com/threatgate/threatgate/models"
)

func TestRelationshipExportImport_RoundTripIsIdempotent(t *testing.T) {
	source, _, _, _ := newTestGraph()
	ctx := context.Background()

	_, err := source.CreateRelationship(ctx, models.CredentialRelationship{
		FormOrigin:   "https://app.example",
		ActionOrigin: "https://sso.example",
		Type:         models.SSOFlow,
		CreatedBy:    "user",
	})
	require.NoError(t, err)

	_, err = source.CreateRelationship(ctx, models.CredentialRelationship{
		FormOrigin:   "https://shop.example",
		ActionOrigin: "https://pay.example",
		Type:         models.TrustedCredentialPost,
		CreatedBy:    "user",
	})
	require.NoError(t, err)

	data, err := source.ExportRelationshipsJSON(ctx)
	require.NoError(t, err)

	var snapshot RelationshipSnapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.NotEmpty(t, snapshot.SnapshotID)
	assert.Equal(t, exportVersion, snapshot.Version)
	assert.Len(t, snapshot.Relationships, 2)

	target, _, _, _ := newTestGraph()

	result, err := target.ImportRelationshipsJSON(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 2, Skipped: 0}, result)

	// Importing the same snapshot again changes nothing.
	result, err = target.ImportRelationshipsJSON(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 0, Skipped: 2}, result)

	rels, err := target.ListRelationships(ctx)
	require.NoError(t, err)
	assert.Len(t, rels, 2)
}

func TestImportRelationshipsJSON_RejectsMalformedInput(t *testing.T) {
	graph, _, _, _ := newTestGraph()

	_, err := graph.ImportRelationshipsJSON(context.Background(), []byte("not json"))
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestTemplateExportImport_RoundTripIsIdempotent(t *testing.T) {
	source, _, _, _ := newTestGraph()
	ctx := context.Background()

	_, err := source.CreateTemplate(ctx, models.PolicyTemplate{
		Name:       "corp-blocklist",
		Category:   "downloads",
		RuleName:   "corp-block-{{HOST}}",
		URLPattern: "https://{{HOST}}/%",
		Action:     models.ActionBlock,
		MatchType:  models.MatchDownload,
	})
	require.NoError(t, err)

	data, err := source.ExportTemplatesJSON(ctx)
	require.NoError(t, err)

	target, _, _, _ := newTestGraph()

	result, err := target.ImportTemplatesJSON(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 1, Skipped: 0}, result)

	result, err = target.ImportTemplatesJSON(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 0, Skipped: 1}, result)

	tpl, err := target.GetTemplateByName(ctx, "corp-blocklist")
	require.NoError(t, err)
	assert.Equal(t, "corp-block-{{HOST}}", tpl.RuleName)
}
