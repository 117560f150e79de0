package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/threatgate/threatgate/internal/logger"
	"github.com/threatgate/threatgate/internal/store"
	"github.com/threatgate/threatgate/models"
)

// fakePolicyRepo is an in-memory PolicyRepository that counts calls so
// tests can see whether a match was answered from cache or from storage.
type fakePolicyRepo struct {
	policies map[int64]models.Policy
	nextID   int64

	matchCalls     int
	recordHitCalls int

	failWith error
}

func newFakePolicyRepo() *fakePolicyRepo {
	return &fakePolicyRepo{policies: make(map[int64]models.Policy), nextID: 1}
}

func (f *fakePolicyRepo) CreatePolicy(_ context.Context, policy models.Policy) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	policy.ID = f.nextID
	f.policies[policy.ID] = policy
	f.nextID++
	return policy.ID, nil
}

func (f *fakePolicyRepo) GetPolicy(_ context.Context, id int64) (models.Policy, error) {
	policy, ok := f.policies[id]
	if !ok {
		return models.Policy{}, fmt.Errorf("%w: policy %d", store.ErrNotFound, id)
	}
	return policy, nil
}

func (f *fakePolicyRepo) ListPolicies(_ context.Context, filter store.ListPoliciesFilter) ([]models.Policy, error) {
	var out []models.Policy
	for _, policy := range f.policies {
		if filter.Action != "" && policy.Action != filter.Action {
			continue
		}
		if filter.MatchType != "" && policy.MatchType != filter.MatchType {
			continue
		}
		out = append(out, policy)
	}
	return out, nil
}

func (f *fakePolicyRepo) UpdatePolicy(_ context.Context, id int64, policy models.Policy) error {
	if _, ok := f.policies[id]; !ok {
		return fmt.Errorf("%w: policy %d", store.ErrNotFound, id)
	}
	policy.ID = id
	f.policies[id] = policy
	return nil
}

func (f *fakePolicyRepo) DeletePolicy(_ context.Context, id int64) error {
	if _, ok := f.policies[id]; !ok {
		return fmt.Errorf("%w: policy %d", store.ErrNotFound, id)
	}
	delete(f.policies, id)
	return nil
}

// matchLocked applies the same priority order as the real matcher: hash,
// then URL pattern, then rule name. Pattern matching supports a trailing
// '%' which is all the tests need.
func (f *fakePolicyRepo) matchLocked(meta models.ThreatMetadata) *models.Policy {
	now := time.Now().UTC()

	pick := func(match func(models.Policy) bool) *models.Policy {
		var best *models.Policy
		for id := range f.policies {
			policy := f.policies[id]
			if policy.Expired(now) || !match(policy) {
				continue
			}
			if best == nil || policy.ID < best.ID {
				p := policy
				best = &p
			}
		}
		return best
	}

	if meta.FileHash != "" {
		if p := pick(func(p models.Policy) bool { return p.FileHash != "" && p.FileHash == meta.FileHash }); p != nil {
			return p
		}
	}
	if meta.URL != "" {
		if p := pick(func(p models.Policy) bool { return p.URLPattern != "" && likeMatch(p.URLPattern, meta.URL) }); p != nil {
			return p
		}
	}
	if meta.RuleName != "" {
		if p := pick(func(p models.Policy) bool { return p.RuleName == meta.RuleName }); p != nil {
			return p
		}
	}
	return nil
}

func likeMatch(pattern, value string) bool {
	if strings.HasSuffix(pattern, "%") {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "%"))
	}
	return pattern == value
}

func (f *fakePolicyRepo) MatchPolicy(_ context.Context, meta models.ThreatMetadata) (*models.Policy, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.matchCalls++

	matched := f.matchLocked(meta)
	if matched == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	matched.HitCount++
	matched.LastHit = &now
	f.policies[matched.ID] = *matched
	return matched, nil
}

func (f *fakePolicyRepo) MatchAndRecord(ctx context.Context, meta models.ThreatMetadata, _ models.PolicyAction, _ []byte) (*models.Policy, int64, error) {
	matched, err := f.MatchPolicy(ctx, meta)
	if err != nil {
		return nil, 0, err
	}
	return matched, 1, nil
}

func (f *fakePolicyRepo) RecordPolicyHit(_ context.Context, id int64) error {
	if f.failWith != nil {
		return f.failWith
	}
	policy, ok := f.policies[id]
	if !ok {
		return fmt.Errorf("%w: policy %d", store.ErrNotFound, id)
	}
	f.recordHitCalls++
	now := time.Now().UTC()
	policy.HitCount++
	policy.LastHit = &now
	f.policies[id] = policy
	return nil
}

func (f *fakePolicyRepo) CleanupExpiredPolicies(_ context.Context) (int64, error) {
	now := time.Now().UTC()
	var removed int64
	for id, policy := range f.policies {
		if policy.Expired(now) {
			delete(f.policies, id)
			removed++
		}
	}
	return removed, nil
}

type relKey struct {
	form, action string
	relType      models.RelationshipType
}

type fakeRelationshipRepo struct {
	rels   map[relKey]models.CredentialRelationship
	nextID int64
}

func newFakeRelationshipRepo() *fakeRelationshipRepo {
	return &fakeRelationshipRepo{rels: make(map[relKey]models.CredentialRelationship), nextID: 1}
}

func (f *fakeRelationshipRepo) CreateRelationship(_ context.Context, rel models.CredentialRelationship) (int64, error) {
	key := relKey{rel.FormOrigin, rel.ActionOrigin, rel.Type}
	if _, ok := f.rels[key]; ok {
		return 0, fmt.Errorf("%w: relationship %s -> %s", store.ErrAlreadyExists, rel.FormOrigin, rel.ActionOrigin)
	}
	rel.ID = f.nextID
	f.rels[key] = rel
	f.nextID++
	return rel.ID, nil
}

func (f *fakeRelationshipRepo) HasRelationship(_ context.Context, formOrigin, actionOrigin string, relType models.RelationshipType) (bool, error) {
	rel, ok := f.rels[relKey{formOrigin, actionOrigin, relType}]
	if !ok {
		return false, nil
	}
	now := time.Now().UTC()
	if rel.ExpiresAt != nil && rel.ExpiresAt.Before(now) {
		return false, nil
	}
	rel.UseCount++
	rel.LastUsed = &now
	f.rels[relKey{formOrigin, actionOrigin, relType}] = rel
	return true, nil
}

func (f *fakeRelationshipRepo) UpdateRelationshipUsage(_ context.Context, id int64) error {
	for key, rel := range f.rels {
		if rel.ID == id {
			now := time.Now().UTC()
			rel.UseCount++
			rel.LastUsed = &now
			f.rels[key] = rel
			return nil
		}
	}
	return fmt.Errorf("%w: relationship %d", store.ErrNotFound, id)
}

func (f *fakeRelationshipRepo) DeleteRelationship(_ context.Context, id int64) error {
	for key, rel := range f.rels {
		if rel.ID == id {
			delete(f.rels, key)
			return nil
		}
	}
	return fmt.Errorf("%w: relationship %d", store.ErrNotFound, id)
}

func (f *fakeRelationshipRepo) ListRelationships(_ context.Context) ([]models.CredentialRelationship, error) {
	out := make([]models.CredentialRelationship, 0, len(f.rels))
	for _, rel := range f.rels {
		out = append(out, rel)
	}
	return out, nil
}

type fakeTemplateRepo struct {
	templates map[string]models.PolicyTemplate
	nextID    int64
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{templates: make(map[string]models.PolicyTemplate), nextID: 1}
}

func (f *fakeTemplateRepo) CreateTemplate(_ context.Context, tpl models.PolicyTemplate) (int64, error) {
	if _, ok := f.templates[tpl.Name]; ok {
		return 0, fmt.Errorf("%w: template %q", store.ErrAlreadyExists, tpl.Name)
	}
	tpl.ID = f.nextID
	f.templates[tpl.Name] = tpl
	f.nextID++
	return tpl.ID, nil
}

func (f *fakeTemplateRepo) GetTemplateByName(_ context.Context, name string) (models.PolicyTemplate, error) {
	tpl, ok := f.templates[name]
	if !ok {
		return models.PolicyTemplate{}, fmt.Errorf("%w: template %q", store.ErrNotFound, name)
	}
	return tpl, nil
}

func (f *fakeTemplateRepo) ListTemplates(_ context.Context) ([]models.PolicyTemplate, error) {
	out := make([]models.PolicyTemplate, 0, len(f.templates))
	for _, tpl := range f.templates {
		out = append(out, tpl)
	}
	return out, nil
}

func (f *fakeTemplateRepo) UpsertBuiltinTemplate(_ context.Context, tpl models.PolicyTemplate) error {
	existing, ok := f.templates[tpl.Name]
	if !ok {
		tpl.ID = f.nextID
		f.nextID++
		f.templates[tpl.Name] = tpl
		return nil
	}
	if existing.BuiltIn && existing.Version < tpl.Version {
		tpl.ID = existing.ID
		f.templates[tpl.Name] = tpl
	}
	return nil
}

type fakeThreatRepo struct {
	threats []models.ThreatRecord
	alerts  []models.CredentialAlert
}

func (f *fakeThreatRepo) RecordThreat(_ context.Context, rec models.ThreatRecord) (int64, error) {
	rec.ID = int64(len(f.threats) + 1)
	f.threats = append(f.threats, rec)
	return rec.ID, nil
}

func (f *fakeThreatRepo) ListThreats(_ context.Context, limit int) ([]models.ThreatRecord, error) {
	if limit <= 0 || limit > len(f.threats) {
		limit = len(f.threats)
	}
	return f.threats[len(f.threats)-limit:], nil
}

func (f *fakeThreatRepo) CleanupOldThreats(_ context.Context, retainDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retainDays)
	kept := f.threats[:0]
	var removed int64
	for _, rec := range f.threats {
		if rec.DetectedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	f.threats = kept
	return removed, nil
}

func (f *fakeThreatRepo) RecordAlert(_ context.Context, alert models.CredentialAlert) (int64, error) {
	alert.ID = int64(len(f.alerts) + 1)
	f.alerts = append(f.alerts, alert)
	return alert.ID, nil
}

func (f *fakeThreatRepo) ListAlerts(_ context.Context, limit int) ([]models.CredentialAlert, error) {
	if limit <= 0 || limit > len(f.alerts) {
		limit = len(f.alerts)
	}
	return f.alerts[len(f.alerts)-limit:], nil
}

// newTestGraph wires a Graph over in-memory fakes.
func newTestGraph() (*Graph, *fakePolicyRepo, *fakeRelationshipRepo, *fakeTemplateRepo) {
	policies := newFakePolicyRepo()
	rels := newFakeRelationshipRepo()
	tpls := newFakeTemplateRepo()

	stores := &store.Storages{
		Policies:      policies,
		Relationships: rels,
		Threats:       &fakeThreatRepo{},
		Templates:     tpls,
	}

	graph, err := NewGraph(stores, 16, logger.Nop())
	if err != nil {
		panic(err)
	}
	return graph, policies, rels, tpls
}
