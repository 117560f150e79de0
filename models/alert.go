package models

import "time"

// AlertDecision is the user's response to a credential alert.
type AlertDecision string

const (
	DecisionTrust     AlertDecision = "trust"
	DecisionBlock     AlertDecision = "block"
	DecisionAllowOnce AlertDecision = "allow_once"
)

// CredentialAlert is an immutable log entry for a suspicious form
// submission observed by the external form monitor.
type CredentialAlert struct {
	ID         int64     `json:"id"`
	DetectedAt time.Time `json:"detected_at"`

	FormOrigin   string `json:"form_origin"`
	ActionOrigin string `json:"action_origin"`

	HasPasswordField bool `json:"has_password_field"`
	HasEmailField    bool `json:"has_email_field"`
	UsesHTTPS        bool `json:"uses_https"`
	IsCrossOrigin    bool `json:"is_cross_origin"`

	// Severity is the categorical severity assigned by the monitor.
	Severity string `json:"severity"`

	// Decision is the user's response, empty until the user reacts.
	Decision AlertDecision `json:"decision,omitempty"`

	// AnomalyScore is a fixed-point scaled probability in [0, 1000].
	AnomalyScore int `json:"anomaly_score"`

	// Indicators lists the anomaly indicator tags that contributed to
	// the score.
	Indicators []string `json:"indicators,omitempty"`
}
