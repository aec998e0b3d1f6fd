// Package review evaluates analyzed integration artifacts against a set of
// design guidelines and renders the outcome as a markdown report. Guidelines
// are data, not code: a YAML file declares which built-in checks run, with
// what severity, so review policies can differ per tenant without a rebuild.
package review

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Severity levels for guideline findings, lowest to highest.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Guideline is one reviewable rule. Check names a built-in check function;
// unknown check names fail guideline loading rather than being skipped
// silently.
type Guideline struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Severity    string `yaml:"severity"`
	Check       string `yaml:"check"`
}

// Guidelines is a named review policy.
type Guidelines struct {
	Name  string      `yaml:"name"`
	Rules []Guideline `yaml:"rules"`
}

// DefaultGuidelines returns the built-in review policy applied when no
// guidelines file is configured.
func DefaultGuidelines() Guidelines {
	return Guidelines{
		Name: "Integration Suite baseline",
		Rules: []Guideline{
			{
				ID:          "SEC-001",
				Title:       "No Basic Authentication",
				Description: "Outbound connections must not use Basic Authentication.",
				Severity:    SeverityCritical,
				Check:       CheckSecurityCompliant,
			},
			{
				ID:          "ERR-001",
				Title:       "Error handling subprocess",
				Description: "Every integration flow needs an exception subprocess with error start and end events.",
				Severity:    SeverityCritical,
				Check:       CheckErrorHandling,
			},
			{
				ID:          "DOC-001",
				Title:       "Flow purpose documented",
				Description: "The collaboration should carry a descriptive name.",
				Severity:    SeverityWarning,
				Check:       CheckPurposeDocumented,
			},
			{
				ID:          "NAM-001",
				Title:       "Steps are named",
				Description: "Service tasks and call activities should have meaningful names.",
				Severity:    SeverityWarning,
				Check:       CheckStepsNamed,
			},
			{
				ID:          "TOP-001",
				Title:       "Sender and receiver declared",
				Description: "The flow should declare at least one sender and one receiver participant.",
				Severity:    SeverityInfo,
				Check:       CheckParticipantsDeclared,
			},
			{
				ID:          "QUA-001",
				Title:       "Clean extraction",
				Description: "The artifact should analyze without processing errors.",
				Severity:    SeverityInfo,
				Check:       CheckCleanExtraction,
			},
		},
	}
}

// LoadGuidelines reads a review policy from a YAML file and validates it.
func LoadGuidelines(path string) (Guidelines, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Guidelines{}, fmt.Errorf("failed to read guidelines file: %w", err)
	}

	var g Guidelines
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Guidelines{}, fmt.Errorf("failed to parse guidelines file: %w", err)
	}
	if err := g.Validate(); err != nil {
		return Guidelines{}, err
	}
	return g, nil
}

// Validate checks rule completeness and that every check name is known.
func (g Guidelines) Validate() error {
	if len(g.Rules) == 0 {
		return fmt.Errorf("guidelines contain no rules")
	}
	seen := map[string]bool{}
	for _, rule := range g.Rules {
		if rule.ID == "" {
			return fmt.Errorf("guideline with empty id (title %q)", rule.Title)
		}
		if seen[rule.ID] {
			return fmt.Errorf("duplicate guideline id %s", rule.ID)
		}
		seen[rule.ID] = true

		switch rule.Severity {
		case SeverityInfo, SeverityWarning, SeverityCritical:
		default:
			return fmt.Errorf("guideline %s has unknown severity %q", rule.ID, rule.Severity)
		}
		if _, ok := checkRegistry[rule.Check]; !ok {
			return fmt.Errorf("guideline %s references unknown check %q", rule.ID, rule.Check)
		}
	}
	return nil
}
