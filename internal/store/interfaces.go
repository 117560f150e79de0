package store

import (
	"context"

	"github.com/threatgate/threatgate/models"
)

// ListPoliciesFilter narrows ListPolicies results. Zero values mean "no
// filter".
type ListPoliciesFilter struct {
	Action    models.PolicyAction
	MatchType models.MatchType
}

// PolicyRepository persists policies and runs the priority matcher.
type PolicyRepository interface {
	// CreatePolicy inserts a policy and returns its id. The policy must
	// already be validated; nothing is persisted on failure.
	CreatePolicy(ctx context.Context, policy models.Policy) (int64, error)

	// GetPolicy returns the policy with the given id or ErrNotFound.
	GetPolicy(ctx context.Context, id int64) (models.Policy, error)

	// ListPolicies returns policies matching the filter, newest first.
	ListPolicies(ctx context.Context, filter ListPoliciesFilter) ([]models.Policy, error)

	// UpdatePolicy replaces the mutable fields of the policy with the
	// given id, or returns ErrNotFound.
	UpdatePolicy(ctx context.Context, id int64, policy models.Policy) error

	// DeletePolicy removes the policy with the given id, or returns
	// ErrNotFound.
	DeletePolicy(ctx context.Context, id int64) error

	// MatchPolicy finds the first policy matching meta in strict priority
	// order (file hash, then URL pattern, then rule name) and, in the
	// same transaction, increments its hit count and stamps last_hit.
	// Returns nil when nothing matches.
	MatchPolicy(ctx context.Context, meta models.ThreatMetadata) (*models.Policy, error)

	// MatchAndRecord runs MatchPolicy and appends a threat-history row in
	// one transaction, so the hit-count update and the audit record can
	// never diverge. Returns the matched policy (nil for no match) and
	// the id of the inserted threat record.
	MatchAndRecord(ctx context.Context, meta models.ThreatMetadata, actionTaken models.PolicyAction, verdictBlob []byte) (*models.Policy, int64, error)

	// RecordPolicyHit increments hit_count and stamps last_hit for the
	// policy with the given id, or returns ErrNotFound. Used when a match
	// was answered from cache but the counter still has to move.
	RecordPolicyHit(ctx context.Context, id int64) error

	// CleanupExpiredPolicies deletes every policy whose expiry is in the
	// past and returns the number removed.
	CleanupExpiredPolicies(ctx context.Context) (int64, error)
}

// RelationshipRepository persists credential trust grants.
type RelationshipRepository interface {
	// CreateRelationship inserts a trust grant and returns its id.
	// Returns ErrAlreadyExists when the (form origin, action origin,
	// type) triple is already present.
	CreateRelationship(ctx context.Context, rel models.CredentialRelationship) (int64, error)

	// HasRelationship reports whether a current (non-expired) trust grant
	// exists for the triple, bumping use_count and last_used when it does.
	HasRelationship(ctx context.Context, formOrigin, actionOrigin string, relType models.RelationshipType) (bool, error)

	// UpdateRelationshipUsage bumps use_count and last_used for the grant
	// with the given id, or returns ErrNotFound.
	UpdateRelationshipUsage(ctx context.Context, id int64) error

	// DeleteRelationship removes the grant with the given id, or returns
	// ErrNotFound.
	DeleteRelationship(ctx context.Context, id int64) error

	// ListRelationships returns every trust grant, oldest first.
	ListRelationships(ctx context.Context) ([]models.CredentialRelationship, error)
}

// ThreatRepository persists the append-only threat history and credential
// alerts.
type ThreatRepository interface {
	// RecordThreat appends a threat-history row and returns its id. A
	// failure here always propagates; the quarantine caller decides
	// whether to proceed or abort.
	RecordThreat(ctx context.Context, rec models.ThreatRecord) (int64, error)

	// ListThreats returns up to limit threat records, newest first.
	// limit <= 0 means no limit.
	ListThreats(ctx context.Context, limit int) ([]models.ThreatRecord, error)

	// CleanupOldThreats deletes threat records older than retainDays and
	// returns the number removed.
	CleanupOldThreats(ctx context.Context, retainDays int) (int64, error)

	// RecordAlert appends a credential alert and returns its id.
	RecordAlert(ctx context.Context, alert models.CredentialAlert) (int64, error)

	// ListAlerts returns up to limit alerts, newest first.
	// limit <= 0 means no limit.
	ListAlerts(ctx context.Context, limit int) ([]models.CredentialAlert, error)
}

// TemplateRepository persists policy templates.
type TemplateRepository interface {
	// CreateTemplate inserts a template and returns its id. Returns
	// ErrAlreadyExists on a duplicate name.
	CreateTemplate(ctx context.Context, tpl models.PolicyTemplate) (int64, error)

	// GetTemplateByName returns the template with the given name or
	// ErrNotFound.
	GetTemplateByName(ctx context.Context, name string) (models.PolicyTemplate, error)

	// ListTemplates returns every template ordered by category then name.
	ListTemplates(ctx context.Context) ([]models.PolicyTemplate, error)

	// UpsertBuiltinTemplate inserts the built-in template or, when a
	// template with the same name exists at a lower version, replaces its
	// definition. Higher or equal stored versions are left untouched.
	UpsertBuiltinTemplate(ctx context.Context, tpl models.PolicyTemplate) error
}

// QuarantineRepository persists quarantine records.
type QuarantineRepository interface {
	// CreateQuarantineRecord inserts a record and returns its id.
	// Returns ErrAlreadyQuarantined when a current record with the same
	// sha256_hash exists.
	CreateQuarantineRecord(ctx context.Context, rec models.QuarantineRecord) (int64, error)

	// GetQuarantineRecord returns the record with the given id or
	// ErrNotFound.
	GetQuarantineRecord(ctx context.Context, id int64) (models.QuarantineRecord, error)

	// FindQuarantineRecordByHash returns the current record with the
	// given content hash, or nil when the content is not quarantined.
	FindQuarantineRecordByHash(ctx context.Context, sha256Hash string) (*models.QuarantineRecord, error)

	// ListQuarantineRecords returns current records, newest first,
	// optionally filtered by threat level ("" means all).
	ListQuarantineRecords(ctx context.Context, level models.ThreatLevel) ([]models.QuarantineRecord, error)

	// DeleteQuarantineRecord removes the record with the given id, or
	// returns ErrNotFound.
	DeleteQuarantineRecord(ctx context.Context, id int64) error

	// QuarantineTotals returns the number of current records and the sum
	// of their plaintext sizes. Used to re-derive in-memory statistics at
	// startup.
	QuarantineTotals(ctx context.Context) (count int64, sizeBytes int64, err error)
}
