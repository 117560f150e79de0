package models

import "time"

// RelationshipType classifies a credential trust grant.
type RelationshipType string

const (
	// TrustedCredentialPost marks a cross-origin credential submission the
	// user explicitly trusted.
	TrustedCredentialPost RelationshipType = "trusted_credential_post"

	// SSOFlow marks a known single-sign-on redirect pattern.
	SSOFlow RelationshipType = "sso_flow"
)

// CredentialRelationship is a remembered user decision to trust a specific
// cross-origin form-submission pattern. Unique on
// (FormOrigin, ActionOrigin, Type).
type CredentialRelationship struct {
	// ID is the monotonic identifier assigned by the store on insert.
	ID int64 `json:"id"`

	// FormOrigin is the origin serving the credential form.
	FormOrigin string `json:"form_origin"`

	// ActionOrigin is the origin the form submits to.
	ActionOrigin string `json:"action_origin"`

	// Type classifies the trust grant.
	Type RelationshipType `json:"relationship_type"`

	// CreatedAt is when the user granted the trust.
	CreatedAt time.Time `json:"created_at"`

	// CreatedBy identifies who granted it.
	CreatedBy string `json:"created_by"`

	// LastUsed is the time of the most recent consult; nil until first use.
	LastUsed *time.Time `json:"last_used,omitempty"`

	// UseCount is incremented on every consult.
	UseCount int64 `json:"use_count"`

	// ExpiresAt is an optional expiry; nil means the grant never expires.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Notes is free text attached by the user.
	Notes string `json:"notes,omitempty"`
}
