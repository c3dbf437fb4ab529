// Package workflow maps classification results onto static workflow definitions.
package workflow

import "github.com/kirillkom/lead-pipeline/internal/core/domain"

type Resolver struct {
	registry map[domain.SourceTag]domain.WorkflowDefinition
	fallback domain.WorkflowDefinition
}

// NewResolver builds the registry from DefaultRegistry with overrides replacing whole entries.
func NewResolver(overrides ...domain.WorkflowDefinition) *Resolver {
	registry := DefaultRegistry()
	for _, def := range overrides {
		registry[def.Source] = def.Clone()
	}
	fallback := FallbackDefinition()
	if def, ok := registry[domain.SourceUnknown]; ok {
		fallback = def
		delete(registry, domain.SourceUnknown)
	}
	return &Resolver{registry: registry, fallback: fallback}
}

func (r *Resolver) Resolve(result domain.ClassificationResult) domain.WorkflowDefinition {
	return r.Definition(result.Source)
}

func (r *Resolver) Definition(source domain.SourceTag) domain.WorkflowDefinition {
	if def, ok := r.registry[source]; ok {
		return def.Clone()
	}
	out := r.fallback.Clone()
	out.Source = source
	return out
}
