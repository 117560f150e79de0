package models

import "time"

// ThreatRecord is an immutable log entry for a detected threat on a
// download. Rows are append-only and pruned only by the retention sweep.
type ThreatRecord struct {
	ID         int64     `json:"id"`
	DetectedAt time.Time `json:"detected_at"`
	URL        string    `json:"url"`
	Filename   string    `json:"filename"`
	FileHash   string    `json:"file_hash"`
	MimeType   string    `json:"mime_type,omitempty"`
	FileSize   int64     `json:"file_size"`

	// RuleName is the scanner rule that produced the verdict.
	RuleName string `json:"rule_name,omitempty"`

	// Severity is the categorical severity at detection time.
	Severity string `json:"severity"`

	// ActionTaken is what the engine actually did.
	ActionTaken PolicyAction `json:"action_taken"`

	// PolicyID links to the policy that fired, if any.
	PolicyID *int64 `json:"policy_id,omitempty"`

	// VerdictBlob is the full scanner verdict serialized as opaque JSON.
	VerdictBlob []byte `json:"verdict_blob,omitempty"`
}
