package ports

import (
	"context"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

// MessageProcessor is the inbound contract for running one message through the pipeline.
type MessageProcessor interface {
	Process(ctx context.Context, msg domain.InboundMessage) (*domain.WorkflowResult, error)
}

// MessageIngestor accepts messages from push transports and hands them to the worker queue.
type MessageIngestor interface {
	Accept(ctx context.Context, msg domain.InboundMessage) error
}

// PipelineReader is the read model for per-thread pipeline state.
type PipelineReader interface {
	Get(ctx context.Context, threadKey string) (*domain.PipelineState, error)
	History(ctx context.Context, threadKey string) ([]domain.Transition, error)
}

// SourceClassifier scores a message against the source registry. It never fails.
type SourceClassifier interface {
	Classify(msg domain.InboundMessage) domain.ClassificationResult
}

// WorkflowResolver maps a classification to the workflow to run.
type WorkflowResolver interface {
	Resolve(result domain.ClassificationResult) domain.WorkflowDefinition
}

// PipelineStore is the per-thread stage tracker used by the orchestrator.
type PipelineStore interface {
	PipelineReader
	GetOrCreate(ctx context.Context, threadKey string) (*domain.PipelineState, error)
	Transition(ctx context.Context, threadKey string, to domain.Stage, triggeredBy string) (*domain.PipelineState, error)
}
