package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/infrastructure/resilience"
)

// transientNATSErrors are connection-level failures a later publish may not hit.
var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
	nats.ErrNoResponders,
	nats.ErrNoStreamResponse,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{}
	case isTransientNATSError(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func isTransientNATSError(err error) bool {
	for _, target := range transientNATSErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// asUnavailable tags transient broker failures so the webhook answers 503.
func asUnavailable(subject string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrServiceUnavailable) {
		return err
	}
	if isTransientNATSError(err) {
		return domain.WrapError(domain.ErrServiceUnavailable, "nats publish "+subject, err)
	}
	return err
}
