package models

import "time"

// QuarantineRecord links a quarantined file to its forensic and file-system
// state. Exactly one current record may exist per SHA-256 hash: the same
// content is never quarantined twice. The record is destroyed together with
// its ciphertext on restore, permanent delete or expiry.
type QuarantineRecord struct {
	ID int64 `json:"id"`

	// OriginalPath is where the plaintext file lived before quarantine.
	OriginalPath string `json:"original_path"`

	// QuarantinePath is the location of the encrypted blob.
	QuarantinePath string `json:"quarantine_path"`

	// Reason is a human-readable summary of the verdict that caused the
	// quarantine.
	Reason string `json:"quarantine_reason"`

	// ThreatScore is the scanner score at quarantine time, in [0, 1000].
	ThreatScore int `json:"threat_score"`

	// ThreatLevel is the categorical severity at quarantine time.
	ThreatLevel ThreatLevel `json:"threat_level"`

	// QuarantinedAt is when the file was made inert.
	QuarantinedAt time.Time `json:"quarantined_at"`

	// FileSize is the plaintext size in bytes.
	FileSize int64 `json:"file_size"`

	// SHA256Hash is the hex SHA-256 of the plaintext content.
	SHA256Hash string `json:"sha256_hash"`
}

// QuarantineStatistics holds the accumulated lifecycle counters.
// CurrentCount and CurrentSizeBytes are re-derived from the persisted
// record set at startup, never trusted from a prior process.
type QuarantineStatistics struct {
	TotalQuarantined    int64 `json:"total_quarantined"`
	TotalRestored       int64 `json:"total_restored"`
	TotalDeleted        int64 `json:"total_deleted"`
	TotalExpiredCleaned int64 `json:"total_expired_cleaned"`
	CurrentCount        int64 `json:"current_quarantine_count"`
	CurrentSizeBytes    int64 `json:"total_quarantine_size_bytes"`
}
