package policy

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/threatgate/threatgate/internal/store"
	"github.com/threatgate/threatgate/models"
)

//go:embed templates.yaml
var builtinTemplatesYAML []byte

// placeholderPattern matches the {{VARIABLE}} slots left in a template
// field after substitution.
var placeholderPattern = regexp.MustCompile(`\{\{[A-Za-z0-9_]+\}\}`)

type builtinTemplateFile struct {
	Templates []builtinTemplate `yaml:"templates"`
}

type builtinTemplate struct {
	Name              string `yaml:"name"`
	Version           int    `yaml:"version"`
	Category          string `yaml:"category"`
	RuleName          string `yaml:"rule_name"`
	URLPattern        string `yaml:"url_pattern"`
	MimeType          string `yaml:"mime_type"`
	Action            string `yaml:"action"`
	MatchType         string `yaml:"match_type"`
	EnforcementAction string `yaml:"enforcement_action"`
	Description       string `yaml:"description"`
}

// SeedBuiltinTemplates loads the embedded template definitions into the
// store. Seeding is idempotent: existing templates are only replaced when
// the embedded definition carries a higher version, and user edits to
// non-built-in templates are never touched.
func (g *Graph) SeedBuiltinTemplates(ctx context.Context) error {
	var file builtinTemplateFile
	if err := yaml.Unmarshal(builtinTemplatesYAML, &file); err != nil {
		return fmt.Errorf("parse builtin templates: %w", err)
	}

	now := time.Now().UTC()
	for _, def := range file.Templates {
		tpl := models.PolicyTemplate{
			Name:              def.Name,
			Version:           def.Version,
			Category:          def.Category,
			BuiltIn:           true,
			RuleName:          def.RuleName,
			URLPattern:        def.URLPattern,
			MimeType:          def.MimeType,
			Action:            models.PolicyAction(def.Action),
			MatchType:         models.MatchType(def.MatchType),
			EnforcementAction: def.EnforcementAction,
			Description:       def.Description,
			CreatedAt:         now,
		}

		if err := g.stores.Templates.UpsertBuiltinTemplate(ctx, tpl); err != nil {
			return fmt.Errorf("seed template %q: %w", def.Name, err)
		}
	}

	return nil
}

// CreateTemplate inserts a user-defined template.
func (g *Graph) CreateTemplate(ctx context.Context, tpl models.PolicyTemplate) (int64, error) {
	if tpl.Name == "" {
		return 0, fmt.Errorf("%w: template name is required", store.ErrValidation)
	}
	if tpl.Version <= 0 {
		tpl.Version = 1
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}
	return g.stores.Templates.CreateTemplate(ctx, tpl)
}

// GetTemplateByName returns the template with the given name.
func (g *Graph) GetTemplateByName(ctx context.Context, name string) (models.PolicyTemplate, error) {
	return g.stores.Templates.GetTemplateByName(ctx, name)
}

// ListTemplates returns every stored template.
func (g *Graph) ListTemplates(ctx context.Context) ([]models.PolicyTemplate, error) {
	return g.stores.Templates.ListTemplates(ctx)
}

// InstantiateTemplate substitutes vars into the named template and creates
// the resulting policy. Every {{VARIABLE}} in the template must be bound;
// an unresolved placeholder fails validation before anything is persisted.
func (g *Graph) InstantiateTemplate(ctx context.Context, name string, vars map[string]string, createdBy string) (int64, error) {
	tpl, err := g.stores.Templates.GetTemplateByName(ctx, name)
	if err != nil {
		return 0, err
	}

	policy := models.Policy{
		RuleName:          substitute(tpl.RuleName, vars),
		URLPattern:        substitute(tpl.URLPattern, vars),
		MimeType:          substitute(tpl.MimeType, vars),
		Action:            tpl.Action,
		MatchType:         tpl.MatchType,
		EnforcementAction: substitute(tpl.EnforcementAction, vars),
		CreatedAt:         time.Now().UTC(),
		CreatedBy:         createdBy,
	}

	for field, value := range map[string]string{
		"rule_name":          policy.RuleName,
		"url_pattern":        policy.URLPattern,
		"mime_type":          policy.MimeType,
		"enforcement_action": policy.EnforcementAction,
	} {
		if leftover := placeholderPattern.FindString(value); leftover != "" {
			return 0, fmt.Errorf("%w: template %q leaves %s unbound in %s",
				store.ErrValidation, name, leftover, field)
		}
	}

	return g.CreatePolicy(ctx, policy)
}

// substitute replaces every {{KEY}} occurrence with its bound value.
func substitute(s string, vars map[string]string) string {
	if s == "" || len(vars) == 0 {
		return s
	}
	for key, value := range vars {
		s = strings.ReplaceAll(s, "{{"+key+"}}", value)
	}
	return s
}
