package config

import "errors"

// Validation errors returned by [Config.validate] when required
// configuration groups are incomplete or invalid.
var (
	// ErrInvalidStorageConfigs indicates invalid storage settings
	// (for example, an empty database path).
	ErrInvalidStorageConfigs = errors.New("invalid storage configuration")

	// ErrInvalidQuarantineConfigs indicates invalid quarantine settings
	// (for example, an empty quarantine directory or non-positive
	// retention period).
	ErrInvalidQuarantineConfigs = errors.New("invalid quarantine configuration")
)
