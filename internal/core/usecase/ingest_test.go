package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

type inboundQueueFake struct {
	published  []domain.InboundMessage
	publishErr error
	deliver    []domain.InboundMessage
	handlerErr []error
}

func (f *inboundQueueFake) PublishInbound(_ context.Context, msg domain.InboundMessage) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *inboundQueueFake) SubscribeInbound(ctx context.Context, handler func(context.Context, domain.InboundMessage) error) error {
	for _, msg := range f.deliver {
		f.handlerErr = append(f.handlerErr, handler(ctx, msg))
	}
	return nil
}

type processorFake struct {
	processed []string
	err       error
}

func (p *processorFake) Process(_ context.Context, msg domain.InboundMessage) (*domain.WorkflowResult, error) {
	p.processed = append(p.processed, msg.ID)
	if p.err != nil {
		return nil, p.err
	}
	return &domain.WorkflowResult{Success: true, MessageID: msg.ID}, nil
}

func TestAcceptPublishesNormalizedMessage(t *testing.T) {
	queue := &inboundQueueFake{}
	uc := NewIngestMessageUseCase(queue, fixedClock())

	err := uc.Accept(context.Background(), domain.InboundMessage{
		ID:      " m1 ",
		From:    " lead@example.com ",
		To:      "sales@company.test",
		Subject: "Inquiry",
	})
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if len(queue.published) != 1 {
		t.Fatalf("expected one published message, got %d", len(queue.published))
	}
	got := queue.published[0]
	if got.ID != "m1" || got.From != "lead@example.com" {
		t.Fatalf("message not normalized: %+v", got)
	}
	if !got.Date.Equal(testNow) {
		t.Fatalf("expected missing date to default to now, got %s", got.Date)
	}
}

func TestAcceptRejectsMissingFields(t *testing.T) {
	queue := &inboundQueueFake{}
	uc := NewIngestMessageUseCase(queue, fixedClock())

	err := uc.Accept(context.Background(), domain.InboundMessage{ID: "m1", Subject: "hi"})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(queue.published) != 0 {
		t.Fatalf("invalid message must not be published")
	}
}

func TestAcceptPropagatesPublishFailure(t *testing.T) {
	queue := &inboundQueueFake{publishErr: errors.New("nats down")}
	uc := NewIngestMessageUseCase(queue, fixedClock())

	err := uc.Accept(context.Background(), domain.InboundMessage{ID: "m1", From: "a@b.c", To: "d@e.f"})
	if err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestConsumeInboundHandsMessagesToProcessor(t *testing.T) {
	queue := &inboundQueueFake{deliver: []domain.InboundMessage{{ID: "m1"}, {ID: "m2"}}}
	processor := &processorFake{}

	if err := ConsumeInbound(context.Background(), queue, processor); err != nil {
		t.Fatalf("ConsumeInbound() error = %v", err)
	}
	if len(processor.processed) != 2 || processor.processed[1] != "m2" {
		t.Fatalf("unexpected processed ids %v", processor.processed)
	}
}
