package models

import "time"

// Flat, versionable records exchanged with the external UI process.
// This core only produces and accepts them as plain data; framing and
// transport belong to the IPC layer.

// ContractVersion is the current version stamped on every record in this
// file.
const ContractVersion = 1

// QuarantineNotification announces a completed quarantine to the UI.
type QuarantineNotification struct {
	Version       int         `json:"version"`
	QuarantineID  int64       `json:"quarantine_id"`
	OriginalPath  string      `json:"original_path"`
	Reason        string      `json:"reason"`
	ThreatLevel   ThreatLevel `json:"threat_level"`
	ThreatScore   int         `json:"threat_score"`
	QuarantinedAt time.Time   `json:"quarantined_at"`
}

// NewQuarantineNotification builds the announcement for a completed
// quarantine.
func NewQuarantineNotification(rec QuarantineRecord) QuarantineNotification {
	return QuarantineNotification{
		Version:       ContractVersion,
		QuarantineID:  rec.ID,
		OriginalPath:  rec.OriginalPath,
		Reason:        rec.Reason,
		ThreatLevel:   rec.ThreatLevel,
		ThreatScore:   rec.ThreatScore,
		QuarantinedAt: rec.QuarantinedAt,
	}
}

// ListQuarantineRequest asks for the current quarantine inventory,
// optionally filtered by threat level.
type ListQuarantineRequest struct {
	Version     int         `json:"version"`
	ThreatLevel ThreatLevel `json:"threat_level,omitempty"`
}

// ListQuarantineResponse carries the inventory.
type ListQuarantineResponse struct {
	Version int                `json:"version"`
	Records []QuarantineRecord `json:"records"`
}

// RestoreRequest asks to decrypt a quarantined file back to TargetPath.
type RestoreRequest struct {
	Version      int    `json:"version"`
	QuarantineID int64  `json:"quarantine_id"`
	TargetPath   string `json:"target_path"`
}

// RestoreResponse reports the outcome of a restore.
type RestoreResponse struct {
	Version int    `json:"version"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// DeleteRequest asks to permanently destroy a quarantined file.
type DeleteRequest struct {
	Version      int   `json:"version"`
	QuarantineID int64 `json:"quarantine_id"`
}

// DeleteResponse reports the outcome of a permanent delete.
type DeleteResponse struct {
	Version int    `json:"version"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// StatisticsRequest asks for the accumulated lifecycle counters.
type StatisticsRequest struct {
	Version int `json:"version"`
}

// StatisticsResponse carries the counters.
type StatisticsResponse struct {
	Version    int                  `json:"version"`
	Statistics QuarantineStatistics `json:"statistics"`
}

// CleanupRequest asks for a retention sweep over the quarantine area.
type CleanupRequest struct {
	Version   int           `json:"version"`
	Retention time.Duration `json:"retention"`
}

// CleanupResponse reports how many records the sweep removed.
type CleanupResponse struct {
	Version int `json:"version"`
	Removed int `json:"removed"`
}
