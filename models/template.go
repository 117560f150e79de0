package models

import "time"

// PolicyTemplate is a named, versioned, reusable policy bundle with
// {{VARIABLE}}-style placeholders. Built-in templates are seeded at first
// run; instantiating a template substitutes variables and produces
// concrete policies.
type PolicyTemplate struct {
	ID int64 `json:"id"`

	// Name uniquely identifies the template.
	Name string `json:"name"`

	// Version increases when a built-in definition changes; re-seeding
	// never downgrades a template.
	Version int `json:"version"`

	// Category groups templates in administrative listings.
	Category string `json:"category"`

	// BuiltIn marks templates seeded from the embedded definitions, as
	// opposed to user-defined ones.
	BuiltIn bool `json:"built_in"`

	// RuleName, URLPattern, MimeType and EnforcementAction may contain
	// {{VARIABLE}} placeholders substituted at instantiation time.
	RuleName          string       `json:"rule_name"`
	URLPattern        string       `json:"url_pattern,omitempty"`
	MimeType          string       `json:"mime_type,omitempty"`
	Action            PolicyAction `json:"action"`
	MatchType         MatchType    `json:"match_type"`
	EnforcementAction string       `json:"enforcement_action,omitempty"`

	// Description explains what the template is for.
	Description string `json:"description,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
