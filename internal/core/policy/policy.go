// Package policy holds the business-tuned inputs of the lead pipeline: pattern
// weights, the source registry, the score bonus table and confidence thresholds.
// Defaults are compiled in; a YAML file may override any of them.
package policy

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

type Weights struct {
	Domain  float64 `yaml:"domain"`
	Subject float64 `yaml:"subject"`
	Body    float64 `yaml:"body"`
}

type Thresholds struct {
	AutoCreateCustomer int `yaml:"auto_create_customer"`
	QualifiedLead      int `yaml:"qualified_lead"`
	HighConfidence     int `yaml:"high_confidence"`
}

type Policy struct {
	Weights           Weights                     `yaml:"weights"`
	Thresholds        Thresholds                  `yaml:"thresholds"`
	UnknownConfidence int                         `yaml:"unknown_confidence"`
	SourceBonus       map[domain.SourceTag]int    `yaml:"source_bonus"`
	Sources           []domain.SourcePattern      `yaml:"sources"`
	Workflows         []domain.WorkflowDefinition `yaml:"workflows,omitempty"`
}

func Default() Policy {
	bonus := make(map[domain.SourceTag]int, len(defaultSourceBonus))
	for tag, value := range defaultSourceBonus {
		bonus[tag] = value
	}
	sources := make([]domain.SourcePattern, len(defaultSources))
	for i, src := range defaultSources {
		src.Domains = append([]string(nil), src.Domains...)
		src.Subjects = append([]string(nil), src.Subjects...)
		src.Bodies = append([]string(nil), src.Bodies...)
		sources[i] = src
	}
	return Policy{
		Weights: Weights{
			Domain:  0.6,
			Subject: 0.3,
			Body:    0.1,
		},
		Thresholds: Thresholds{
			AutoCreateCustomer: 95,
			QualifiedLead:      85,
			HighConfidence:     80,
		},
		UnknownConfidence: 20,
		SourceBonus:       bonus,
		Sources:           sources,
	}
}

// fileOverlay mirrors Policy with pointer fields. Parse points them at a Default copy
// so absent YAML keys keep their defaults.
type fileOverlay struct {
	Weights           *Weights                    `yaml:"weights"`
	Thresholds        *Thresholds                 `yaml:"thresholds"`
	UnknownConfidence *int                        `yaml:"unknown_confidence"`
	SourceBonus       map[domain.SourceTag]int    `yaml:"source_bonus"`
	Sources           []domain.SourcePattern      `yaml:"sources"`
	Workflows         []domain.WorkflowDefinition `yaml:"workflows"`
}

// LoadFile reads a YAML policy and merges it over Default. An empty path yields Default.
func LoadFile(path string) (Policy, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Policy, error) {
	p := Default()
	// Partial weights or thresholds blocks decode over the defaults.
	overlay := fileOverlay{
		Weights:           &p.Weights,
		Thresholds:        &p.Thresholds,
		UnknownConfidence: &p.UnknownConfidence,
	}
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return Policy{}, domain.WrapError(domain.ErrValidation, "parse policy", err)
	}
	if overlay.Weights != nil {
		p.Weights = *overlay.Weights
	}
	if overlay.Thresholds != nil {
		p.Thresholds = *overlay.Thresholds
	}
	if overlay.UnknownConfidence != nil {
		p.UnknownConfidence = *overlay.UnknownConfidence
	}
	for tag, value := range overlay.SourceBonus {
		p.SourceBonus[tag] = value
	}
	if len(overlay.Sources) > 0 {
		p.Sources = overlay.Sources
	}
	p.Workflows = overlay.Workflows

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	var errs []error
	for name, w := range map[string]float64{"domain": p.Weights.Domain, "subject": p.Weights.Subject, "body": p.Weights.Body} {
		if w < 0 || w > 1 {
			errs = append(errs, fmt.Errorf("weights.%s must be within [0,1], got %v", name, w))
		}
	}
	for name, v := range map[string]int{
		"auto_create_customer": p.Thresholds.AutoCreateCustomer,
		"qualified_lead":       p.Thresholds.QualifiedLead,
		"high_confidence":      p.Thresholds.HighConfidence,
		"unknown_confidence":   p.UnknownConfidence,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("%s must be within [0,100], got %d", name, v))
		}
	}
	for tag := range p.SourceBonus {
		if !tag.Valid() {
			errs = append(errs, fmt.Errorf("source_bonus: unknown source %q", tag))
		}
	}

	seen := make(map[domain.SourceTag]bool, len(p.Sources))
	for i, src := range p.Sources {
		switch {
		case !src.Source.Valid() || src.Source == domain.SourceUnknown:
			errs = append(errs, fmt.Errorf("sources[%d]: invalid source %q", i, src.Source))
		case seen[src.Source]:
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate source %q", i, src.Source))
		}
		seen[src.Source] = true
		if src.Weight <= 0 || src.Weight > 100 {
			errs = append(errs, fmt.Errorf("sources[%d]: weight must be within (0,100], got %v", i, src.Weight))
		}
		if len(src.Domains)+len(src.Subjects)+len(src.Bodies) == 0 {
			errs = append(errs, fmt.Errorf("sources[%d]: %s has no patterns", i, src.Source))
		}
	}

	for i, wf := range p.Workflows {
		if err := validateWorkflow(wf); err != nil {
			errs = append(errs, fmt.Errorf("workflows[%d]: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return domain.WrapError(domain.ErrValidation, "validate policy", errors.Join(errs...))
	}
	return nil
}

func validateWorkflow(wf domain.WorkflowDefinition) error {
	if !wf.Source.Valid() {
		return fmt.Errorf("invalid source %q", wf.Source)
	}
	switch wf.PriorityTier {
	case domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow:
	default:
		return fmt.Errorf("invalid priority tier %q", wf.PriorityTier)
	}
	switch wf.ResponseSLA {
	case domain.SLAImmediate, domain.SLASameDay, domain.SLAStandard:
	default:
		return fmt.Errorf("invalid response sla %q", wf.ResponseSLA)
	}
	for j, action := range wf.AutoActions {
		if !action.Kind.Valid() {
			return fmt.Errorf("auto_actions[%d]: unknown kind %q", j, action.Kind)
		}
		if action.Trigger != domain.TriggerImmediate && action.Trigger != domain.TriggerDelayed {
			return fmt.Errorf("auto_actions[%d]: invalid trigger %q", j, action.Trigger)
		}
	}
	return nil
}

// Score folds the per-source bonus into a classification confidence, clamped to [0,100].
func (p Policy) Score(result domain.ClassificationResult) int {
	return clamp(result.Confidence+p.SourceBonus[result.Source], 0, 100)
}

// LeadStatusFor maps confidence onto the initial lead status.
func (p Policy) LeadStatusFor(confidence int) domain.LeadStatus {
	if confidence >= p.Thresholds.QualifiedLead {
		return domain.LeadStatusQualified
	}
	return domain.LeadStatusNew
}

func (p Policy) ShouldAutoCreateCustomer(confidence int) bool {
	return confidence >= p.Thresholds.AutoCreateCustomer
}

// IsHighConfidence reports whether a classification can be trusted without a manual source check.
func (p Policy) IsHighConfidence(confidence int) bool {
	return confidence >= p.Thresholds.HighConfidence
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
