package models

// ThreatLevel is the categorical severity assigned by the external scanner.
type ThreatLevel string

const (
	LevelClean    ThreatLevel = "clean"
	LevelLow      ThreatLevel = "low"
	LevelMedium   ThreatLevel = "medium"
	LevelHigh     ThreatLevel = "high"
	LevelCritical ThreatLevel = "critical"
)

// Verdict is the output of the external content scanner. The quarantine
// engine consumes it as opaque input: it never re-evaluates the detection,
// only decides and records what happens next.
type Verdict struct {
	// Level is the categorical severity.
	Level ThreatLevel `json:"level"`

	// Score is a fixed-point scaled probability in [0, 1000].
	Score int `json:"score"`

	// Confidence is the scanner's confidence in the verdict, in [0, 1].
	Confidence float64 `json:"confidence"`

	// MatchedRules lists the scanner rules that fired.
	MatchedRules []string `json:"matched_rules,omitempty"`

	// Behaviors lists behavioral indicators observed in the sample.
	Behaviors []string `json:"behaviors,omitempty"`
}
