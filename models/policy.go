package models

import "time"

// PolicyAction defines what the engine does when a policy matches
// a threat or a credential-submission event.
type PolicyAction string

const (
	// ActionAllow permits the download or submission without interference.
	ActionAllow PolicyAction = "allow"

	// ActionBlock rejects the download or submission outright.
	ActionBlock PolicyAction = "block"

	// ActionQuarantine encrypts the file into the quarantine area and
	// removes the plaintext original.
	ActionQuarantine PolicyAction = "quarantine"

	// ActionBlockAutofill prevents credential autofill on the matched form
	// without blocking the page itself.
	ActionBlockAutofill PolicyAction = "block_autofill"

	// ActionWarnUser surfaces a warning and lets the user decide.
	ActionWarnUser PolicyAction = "warn_user"
)

// MatchType defines the class of event a policy applies to.
type MatchType string

const (
	// MatchDownload applies to completed file downloads.
	MatchDownload MatchType = "download"

	// MatchFormMismatch applies to credential forms whose action origin
	// differs from the form origin.
	MatchFormMismatch MatchType = "form_mismatch"

	// MatchInsecureCred applies to credential submissions over plain HTTP.
	MatchInsecureCred MatchType = "insecure_cred"

	// MatchThirdPartyForm applies to credential forms injected by a
	// third-party origin.
	MatchThirdPartyForm MatchType = "third_party_form"
)

// Policy is a stored rule mapping a match key (file hash, URL pattern or
// rule name) to an action. At least one of FileHash, URLPattern or RuleName
// must be usable as a match key.
type Policy struct {
	// ID is the monotonic identifier assigned by the store on insert.
	ID int64 `json:"id"`

	// RuleName identifies the policy. Required; also serves as the
	// lowest-priority match key.
	RuleName string `json:"rule_name"`

	// URLPattern is an optional SQL LIKE pattern ('%' and '_' wildcards)
	// matched against a threat's URL.
	URLPattern string `json:"url_pattern,omitempty"`

	// FileHash is an optional hex-encoded SHA-256 of the file content.
	// Hash matches take priority over every other match key.
	FileHash string `json:"file_hash,omitempty"`

	// MimeType optionally narrows the policy to one content type.
	MimeType string `json:"mime_type,omitempty"`

	// Action is what happens on a match.
	Action PolicyAction `json:"action"`

	// MatchType is the event class the policy applies to.
	MatchType MatchType `json:"match_type"`

	// EnforcementAction is a free-form description of how the action was
	// or should be enforced, kept for the audit trail.
	EnforcementAction string `json:"enforcement_action,omitempty"`

	// CreatedAt is when the policy was inserted.
	CreatedAt time.Time `json:"created_at"`

	// CreatedBy identifies who or what created the policy
	// (user decision, template instantiation, system default).
	CreatedBy string `json:"created_by"`

	// ExpiresAt is an optional expiry; nil means the policy never expires.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// HitCount is incremented every time the policy matches.
	HitCount int64 `json:"hit_count"`

	// LastHit is the time of the most recent match; nil until the first hit.
	LastHit *time.Time `json:"last_hit,omitempty"`
}

// HasMatchKey reports whether the policy carries at least one usable
// match key.
func (p Policy) HasMatchKey() bool {
	return p.FileHash != "" || p.URLPattern != "" || p.RuleName != ""
}

// Expired reports whether the policy has an expiry in the past relative
// to now.
func (p Policy) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// ThreatMetadata describes a detected threat as seen by the matcher.
// It is produced by an external scanner and consumed read-only here.
type ThreatMetadata struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	FileHash string `json:"file_hash"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size"`
	RuleName string `json:"rule_name,omitempty"`
	Severity string `json:"severity,omitempty"`
}
