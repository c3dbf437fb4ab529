package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/core/ports"
)

// IngestMessageUseCase validates push-delivered messages and queues them for the worker.
type IngestMessageUseCase struct {
	queue ports.InboundQueue
	clock ports.Clock
}

func NewIngestMessageUseCase(queue ports.InboundQueue, clock ports.Clock) *IngestMessageUseCase {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &IngestMessageUseCase{
		queue: queue,
		clock: clock,
	}
}

func (uc *IngestMessageUseCase) Accept(ctx context.Context, msg domain.InboundMessage) error {
	msg.ID = strings.TrimSpace(msg.ID)
	msg.ThreadKey = strings.TrimSpace(msg.ThreadKey)
	msg.From = strings.TrimSpace(msg.From)
	msg.To = strings.TrimSpace(msg.To)

	var missing []string
	if msg.ID == "" {
		missing = append(missing, "messageId")
	}
	if msg.From == "" {
		missing = append(missing, "from")
	}
	if msg.To == "" {
		missing = append(missing, "to")
	}
	if len(missing) > 0 {
		return domain.WrapError(domain.ErrValidation, "accept message",
			fmt.Errorf("missing required fields: %s", strings.Join(missing, ", ")))
	}
	if msg.Date.IsZero() {
		msg.Date = uc.clock.Now()
	}

	if err := uc.queue.PublishInbound(ctx, msg); err != nil {
		return fmt.Errorf("publish inbound message: %w", err)
	}
	return nil
}

// ConsumeInbound subscribes the processor to the inbound queue until ctx is done.
func ConsumeInbound(ctx context.Context, queue ports.InboundQueue, processor ports.MessageProcessor) error {
	return queue.SubscribeInbound(ctx, func(ctx context.Context, msg domain.InboundMessage) error {
		_, err := processor.Process(ctx, msg)
		return err
	})
}
