package policy

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/threatgate/threatgate/internal/store"
	"github.com/threatgate/threatgate/models"
)

var validate = validator.New()

var knownActions = map[models.PolicyAction]struct{}{
	models.ActionAllow:         {},
	models.ActionBlock:         {},
	models.ActionQuarantine:    {},
	models.ActionBlockAutofill: {},
	models.ActionWarnUser:      {},
}

var knownMatchTypes = map[models.MatchType]struct{}{
	models.MatchDownload:       {},
	models.MatchFormMismatch:   {},
	models.MatchInsecureCred:   {},
	models.MatchThirdPartyForm: {},
}

var knownRelationshipTypes = map[models.RelationshipType]struct{}{
	models.TrustedCredentialPost: {},
	models.SSOFlow:               {},
}

// validatePolicy checks a policy before it reaches storage. Nothing is
// persisted when any check fails.
func validatePolicy(policy models.Policy) error {
	if err := validate.Var(policy.RuleName, "required,max=255"); err != nil {
		return fmt.Errorf("%w: rule_name is required and at most 255 characters", store.ErrValidation)
	}
	if err := validate.Var(policy.FileHash, "omitempty,len=64,hexadecimal"); err != nil {
		return fmt.Errorf("%w: file_hash must be a 64-character hex SHA-256", store.ErrValidation)
	}
	if err := validate.Var(policy.URLPattern, "omitempty,max=2048"); err != nil {
		return fmt.Errorf("%w: url_pattern is at most 2048 characters", store.ErrValidation)
	}

	if _, ok := knownActions[policy.Action]; !ok {
		return fmt.Errorf("%w: unknown action %q", store.ErrValidation, policy.Action)
	}
	if _, ok := knownMatchTypes[policy.MatchType]; !ok {
		return fmt.Errorf("%w: unknown match_type %q", store.ErrValidation, policy.MatchType)
	}

	if !policy.HasMatchKey() {
		return fmt.Errorf("%w: policy needs at least one match key (file_hash, url_pattern or rule_name)", store.ErrValidation)
	}

	if policy.ExpiresAt != nil && !policy.ExpiresAt.After(time.Now()) {
		return fmt.Errorf("%w: expires_at must be in the future", store.ErrValidation)
	}

	return nil
}

// validateRelationship checks a credential trust grant before insert.
func validateRelationship(rel models.CredentialRelationship) error {
	if err := validate.Var(rel.FormOrigin, "required,max=2048"); err != nil {
		return fmt.Errorf("%w: form_origin is required", store.ErrValidation)
	}
	if err := validate.Var(rel.ActionOrigin, "required,max=2048"); err != nil {
		return fmt.Errorf("%w: action_origin is required", store.ErrValidation)
	}
	if _, ok := knownRelationshipTypes[rel.Type]; !ok {
		return fmt.Errorf("%w: unknown relationship_type %q", store.ErrValidation, rel.Type)
	}
	return nil
}
