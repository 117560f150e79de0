package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/threatgate/threatgate/internal/logger"
	"github.com/threatgate/threatgate/internal/store"
	"github.com/threatgate/threatgate/models"
)

// DefaultCacheSize bounds the match cache when the configuration does not
// say otherwise.
const DefaultCacheSize = 1000

// matchKey identifies one matcher question. Two threats asking the same
// question get the same cache slot.
type matchKey struct {
	hash string
	url  string
	rule string
}

// cacheEntry caches the answer to a matcher question, including the
// negative answer: matched=false means storage was asked and found nothing.
type cacheEntry struct {
	policy  models.Policy
	matched bool
}

// Graph is the policy decision service. It fronts the repositories with
// validation and an LRU cache over match results. The cache serves only the
// read half of a match; hit counters always move in storage.
type Graph struct {
	stores *store.Storages
	cache  *lru.Cache[matchKey, cacheEntry]
	logger *logger.Logger
}

// NewGraph constructs a [Graph] over the given storages. cacheSize <= 0
// falls back to [DefaultCacheSize].
func NewGraph(stores *store.Storages, cacheSize int, log *logger.Logger) (*Graph, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.New[matchKey, cacheEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create match cache: %w", err)
	}

	return &Graph{
		stores: stores,
		cache:  cache,
		logger: log,
	}, nil
}

// CreatePolicy validates and inserts a policy. Any mutation purges the
// match cache; stale positives and stale negatives are equally wrong.
func (g *Graph) CreatePolicy(ctx context.Context, policy models.Policy) (int64, error) {
	if err := validatePolicy(policy); err != nil {
		return 0, err
	}
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = time.Now().UTC()
	}
	if policy.CreatedBy == "" {
		policy.CreatedBy = "system"
	}

	id, err := g.stores.Policies.CreatePolicy(ctx, policy)
	if err != nil {
		return 0, err
	}

	g.cache.Purge()
	return id, nil
}

// GetPolicy returns the policy with the given id.
func (g *Graph) GetPolicy(ctx context.Context, id int64) (models.Policy, error) {
	return g.stores.Policies.GetPolicy(ctx, id)
}

// ListPolicies returns policies matching the filter.
func (g *Graph) ListPolicies(ctx context.Context, filter store.ListPoliciesFilter) ([]models.Policy, error) {
	return g.stores.Policies.ListPolicies(ctx, filter)
}

// UpdatePolicy validates and replaces the policy with the given id.
func (g *Graph) UpdatePolicy(ctx context.Context, id int64, policy models.Policy) error {
	if err := validatePolicy(policy); err != nil {
		return err
	}

	if err := g.stores.Policies.UpdatePolicy(ctx, id, policy); err != nil {
		return err
	}

	g.cache.Purge()
	return nil
}

// DeletePolicy removes the policy with the given id.
func (g *Graph) DeletePolicy(ctx context.Context, id int64) error {
	if err := g.stores.Policies.DeletePolicy(ctx, id); err != nil {
		return err
	}

	g.cache.Purge()
	return nil
}

// MatchPolicy answers whether any policy applies to the threat, in strict
// priority order: file hash, then URL pattern, then rule name. A cache hit
// still records the hit in storage so counters never drift.
func (g *Graph) MatchPolicy(ctx context.Context, meta models.ThreatMetadata) (*models.Policy, error) {
	key := matchKey{hash: meta.FileHash, url: meta.URL, rule: meta.RuleName}

	if entry, ok := g.cache.Get(key); ok {
		if !entry.matched {
			return nil, nil
		}

		now := time.Now().UTC()
		if !entry.policy.Expired(now) {
			err := g.stores.Policies.RecordPolicyHit(ctx, entry.policy.ID)
			switch {
			case err == nil:
				policy := entry.policy
				policy.HitCount++
				policy.LastHit = &now
				g.cache.Add(key, cacheEntry{policy: policy, matched: true})
				return &policy, nil
			case errors.Is(err, store.ErrNotFound):
				// Policy vanished behind the cache; ask storage again.
			default:
				return nil, err
			}
		}
		g.cache.Remove(key)
	}

	matched, err := g.stores.Policies.MatchPolicy(ctx, meta)
	if err != nil {
		return nil, err
	}

	if matched == nil {
		g.cache.Add(key, cacheEntry{})
		return nil, nil
	}

	g.cache.Add(key, cacheEntry{policy: *matched, matched: true})
	return matched, nil
}

// MatchAndRecord matches the threat and appends its threat-history row in
// one storage transaction. The cache cannot serve this path because the
// audit row must be written either way; it only gets primed with the
// outcome.
func (g *Graph) MatchAndRecord(ctx context.Context, meta models.ThreatMetadata, actionTaken models.PolicyAction, verdict *models.Verdict) (*models.Policy, int64, error) {
	var blob []byte
	if verdict != nil {
		var err error
		blob, err = json.Marshal(verdict)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal verdict: %w", err)
		}
	}

	matched, threatID, err := g.stores.Policies.MatchAndRecord(ctx, meta, actionTaken, blob)
	if err != nil {
		return nil, 0, err
	}

	key := matchKey{hash: meta.FileHash, url: meta.URL, rule: meta.RuleName}
	if matched == nil {
		g.cache.Add(key, cacheEntry{})
	} else {
		g.cache.Add(key, cacheEntry{policy: *matched, matched: true})
	}

	return matched, threatID, nil
}

// CreateRelationship validates and inserts a credential trust grant.
func (g *Graph) CreateRelationship(ctx context.Context, rel models.CredentialRelationship) (int64, error) {
	if err := validateRelationship(rel); err != nil {
		return 0, err
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}
	return g.stores.Relationships.CreateRelationship(ctx, rel)
}

// HasRelationship reports whether a current trust grant covers the triple,
// bumping its usage counters when it does.
func (g *Graph) HasRelationship(ctx context.Context, formOrigin, actionOrigin string, relType models.RelationshipType) (bool, error) {
	return g.stores.Relationships.HasRelationship(ctx, formOrigin, actionOrigin, relType)
}

// UpdateRelationshipUsage bumps use_count and last_used for the grant.
func (g *Graph) UpdateRelationshipUsage(ctx context.Context, id int64) error {
	return g.stores.Relationships.UpdateRelationshipUsage(ctx, id)
}

// DeleteRelationship removes the trust grant with the given id.
func (g *Graph) DeleteRelationship(ctx context.Context, id int64) error {
	return g.stores.Relationships.DeleteRelationship(ctx, id)
}

// ListRelationships returns every trust grant.
func (g *Graph) ListRelationships(ctx context.Context) ([]models.CredentialRelationship, error) {
	return g.stores.Relationships.ListRelationships(ctx)
}

// RecordThreat appends a threat-history row.
func (g *Graph) RecordThreat(ctx context.Context, rec models.ThreatRecord) (int64, error) {
	return g.stores.Threats.RecordThreat(ctx, rec)
}

// ListThreats returns up to limit threat records, newest first.
func (g *Graph) ListThreats(ctx context.Context, limit int) ([]models.ThreatRecord, error) {
	return g.stores.Threats.ListThreats(ctx, limit)
}

// RecordAlert appends a credential alert.
func (g *Graph) RecordAlert(ctx context.Context, alert models.CredentialAlert) (int64, error) {
	return g.stores.Threats.RecordAlert(ctx, alert)
}

// ListAlerts returns up to limit credential alerts, newest first.
func (g *Graph) ListAlerts(ctx context.Context, limit int) ([]models.CredentialAlert, error) {
	return g.stores.Threats.ListAlerts(ctx, limit)
}

// CleanupExpiredPolicies removes expired policies and purges the cache.
func (g *Graph) CleanupExpiredPolicies(ctx context.Context) (int64, error) {
	removed, err := g.stores.Policies.CleanupExpiredPolicies(ctx)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		g.cache.Purge()
	}
	return removed, nil
}

// CleanupOldThreats removes threat records older than retainDays.
func (g *Graph) CleanupOldThreats(ctx context.Context, retainDays int) (int64, error) {
	return g.stores.Threats.CleanupOldThreats(ctx, retainDays)
}

// Vacuum rebuilds the database file.
func (g *Graph) Vacuum(ctx context.Context) error {
	return g.stores.DB.Vacuum(ctx)
}

// VerifyIntegrity runs the storage integrity check.
func (g *Graph) VerifyIntegrity(ctx context.Context) error {
	return g.stores.DB.VerifyIntegrity(ctx)
}

// IsHealthy reports whether storage currently answers queries.
func (g *Graph) IsHealthy(ctx context.Context) bool {
	return g.stores.DB.IsHealthy(ctx)
}
