package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatgate/threatgate/internal/store"
	"github.com/threatgate/threatgate/models"
)

func TestSeedBuiltinTemplates_IsIdempotent(t *testing.T) {
	graph, _, _, tpls := newTestGraph()
	ctx := context.Background()

	require.NoError(t, graph.SeedBuiltinTemplates(ctx))
	seeded := len(tpls.templates)
	require.NotZero(t, seeded)

	require.NoError(t, graph.SeedBuiltinTemplates(ctx))
	assert.Equal(t, seeded, len(tpls.templates))

	tpl, err := graph.GetTemplateByName(ctx, "block-host-downloads")
	require.NoError(t, err)
	assert.True(t, tpl.BuiltIn)
	assert.Equal(t, models.ActionBlock, tpl.Action)
	assert.Equal(t, models.MatchDownload, tpl.MatchType)
}

func TestSeedBuiltinTemplates_NeverDowngrades(t *testing.T) {
	graph, _, _, tpls := newTestGraph()
	ctx := context.Background()

	// A stored definition newer than the embedded one must survive
	// re-seeding untouched.
	tpls.templates["block-host-downloads"] = models.PolicyTemplate{
		ID:        1,
		Name:      "block-host-downloads",
		Version:   99,
		Category:  "downloads",
		BuiltIn:   true,
		RuleName:  "locally-patched-{{HOST}}",
		Action:    models.ActionBlock,
		MatchType: models.MatchDownload,
	}
	tpls.nextID = 2

	require.NoError(t, graph.SeedBuiltinTemplates(ctx))

	tpl, err := graph.GetTemplateByName(ctx, "block-host-downloads")
	require.NoError(t, err)
	assert.Equal(t, 99, tpl.Version)
	assert.Equal(t, "locally-patched-{{HOST}}", tpl.RuleName)
}

func TestInstantiateTemplate_SubstitutesAndCreates(t *testing.T) {
	graph, _, _, _ := newTestGraph()
	ctx := context.Background()

	require.NoError(t, graph.SeedBuiltinTemplates(ctx))

	id, err := graph.InstantiateTemplate(ctx, "block-host-downloads",
		map[string]string{"HOST": "malware.example"}, "admin")
	require.NoError(t, err)

	policy, err := graph.GetPolicy(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "block-downloads-malware.example", policy.RuleName)
	assert.Equal(t, "https://malware.example/%", policy.URLPattern)
	assert.Equal(t, models.ActionBlock, policy.Action)
	assert.Equal(t, "admin", policy.CreatedBy)

	// And the created policy actually matches.
	matched, err := graph.MatchPolicy(ctx, models.ThreatMetadata{
		URL: "https://malware.example/dropper.bin",
	})
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, id, matched.ID)
}

func TestInstantiateTemplate_RejectsUnboundVariables(t *testing.T) {
	graph, policies, _, _ := newTestGraph()
	ctx := context.Background()

	require.NoError(t, graph.SeedBuiltinTemplates(ctx))

	_, err := graph.InstantiateTemplate(ctx, "quarantine-mime-type",
		map[string]string{"LABEL": "archives"}, "admin")
	require.ErrorIs(t, err, store.ErrValidation)
	assert.Empty(t, policies.policies)
}

func TestInstantiateTemplate_UnknownTemplate(t *testing.T) {
	graph, _, _, _ := newTestGraph()

	_, err := graph.InstantiateTemplate(context.Background(), "no-such-template", nil, "admin")
	require.ErrorIs(t, err, store.ErrNotFound)
}
