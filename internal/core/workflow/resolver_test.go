package workflow

import (
	"reflect"
	"testing"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

func TestResolveKnownSource(t *testing.T) {
	r := NewResolver()
	def := r.Resolve(domain.ClassificationResult{Source: domain.SourcePartnerChannelA, Confidence: 90})
	if def.PriorityTier != domain.PriorityHigh || def.ResponseSLA != domain.SLAImmediate {
		t.Fatalf("unexpected partner A workflow: %+v", def)
	}
	if len(def.RequiredActions) == 0 {
		t.Fatalf("expected required actions for partner A")
	}
}

func TestResolveUnknownUsesFallback(t *testing.T) {
	r := NewResolver()
	def := r.Resolve(domain.ClassificationResult{Source: domain.SourceUnknown, Confidence: 20})
	if def.PriorityTier != domain.PriorityLow || def.ResponseSLA != domain.SLAStandard {
		t.Fatalf("unexpected fallback: %+v", def)
	}
	if len(def.RequiredActions) != 0 || len(def.AutoActions) != 0 {
		t.Fatalf("fallback must not carry blocking or automatic actions: %+v", def)
	}
	if len(def.SuggestedActions) == 0 {
		t.Fatalf("fallback should suggest a review")
	}
}

func TestResolveIsStableAndIsolated(t *testing.T) {
	r := NewResolver()
	result := domain.ClassificationResult{Source: domain.SourceAccountingImport, Confidence: 70}

	first := r.Resolve(result)
	first.RequiredActions[0].Title = "mutated"
	first.AutoActions[0].Tags[0] = "mutated"

	second := r.Resolve(result)
	if second.RequiredActions[0].Title == "mutated" || second.AutoActions[0].Tags[0] == "mutated" {
		t.Fatalf("resolver leaked registry state to callers")
	}
	if !reflect.DeepEqual(second, r.Resolve(result)) {
		t.Fatalf("resolve is not deterministic")
	}
}

func TestResolveIgnoresConfidence(t *testing.T) {
	r := NewResolver()
	low := r.Resolve(domain.ClassificationResult{Source: domain.SourceReferral, Confidence: 1})
	high := r.Resolve(domain.ClassificationResult{Source: domain.SourceReferral, Confidence: 99})
	if !reflect.DeepEqual(low, high) {
		t.Fatalf("workflow must depend on source only")
	}
}

func TestOverridesReplaceEntries(t *testing.T) {
	override := domain.WorkflowDefinition{
		Source:       domain.SourcePhone,
		PriorityTier: domain.PriorityLow,
		ResponseSLA:  domain.SLAStandard,
	}
	unknown := domain.WorkflowDefinition{
		Source:           domain.SourceUnknown,
		PriorityTier:     domain.PriorityMedium,
		ResponseSLA:      domain.SLASameDay,
		SuggestedActions: []domain.Action{{Title: "Triage"}},
	}
	r := NewResolver(override, unknown)

	if def := r.Definition(domain.SourcePhone); def.PriorityTier != domain.PriorityLow {
		t.Fatalf("override not applied: %+v", def)
	}
	def := r.Definition(domain.SourceUnknown)
	if def.PriorityTier != domain.PriorityMedium || def.SuggestedActions[0].Title != "Triage" {
		t.Fatalf("fallback override not applied: %+v", def)
	}
}

func TestEveryRegisteredSourceHasValidAutoActions(t *testing.T) {
	for source, def := range DefaultRegistry() {
		if !source.Valid() || source == domain.SourceUnknown {
			t.Fatalf("invalid registry key %q", source)
		}
		for _, action := range def.AutoActions {
			if !action.Kind.Valid() {
				t.Fatalf("%s: unknown auto action kind %q", source, action.Kind)
			}
		}
	}
}
