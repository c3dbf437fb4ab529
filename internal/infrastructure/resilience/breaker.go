package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrCallTimeout is returned when an adapter call outlives the breaker's call timeout.
var ErrCallTimeout = errors.New("adapter call timed out")

type BreakerSnapshot struct {
	Adapter              string       `json:"adapter"`
	State                BreakerState `json:"state"`
	ConsecutiveFailures  uint32       `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32       `json:"consecutive_successes"`
	TotalFailures        uint32       `json:"total_failures"`
	LastFailureAt        time.Time    `json:"last_failure_at"`
}

// CircuitBreaker guards a single adapter. It opens after FailureThreshold
// consecutive failures, probes again after ResetTimeout and closes after
// SuccessThreshold consecutive successful probes.
type CircuitBreaker struct {
	name    string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[struct{}]

	mu            sync.Mutex
	lastFailureAt time.Time
}

func NewCircuitBreaker(name string, cfg Config, classifier ErrorClassifier) *CircuitBreaker {
	cfg = cfg.normalize()
	if classifier == nil {
		classifier = defaultClassifier
	}

	b := &CircuitBreaker{
		name:    name,
		timeout: cfg.BreakerCallTimeout,
	}
	threshold := cfg.BreakerFailureThreshold
	hook := cfg.OnStateChange

	b.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerSuccessThreshold,
		Timeout:     cfg.BreakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if !classifier(err).RecordFailure {
				return true
			}
			b.noteFailure()
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "adapter", name, "from", from.String(), "to", to.String())
			if hook != nil {
				hook(name, toBreakerState(from), toBreakerState(to))
			}
		},
	})
	return b
}

func (b *CircuitBreaker) Name() string {
	return b.name
}

// Execute runs fn through the breaker. An open circuit fails fast with
// domain.ErrServiceUnavailable and never invokes fn.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.callWithTimeout(ctx, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.WrapError(domain.ErrServiceUnavailable, "circuit "+b.name, err)
	}
	return err
}

func (b *CircuitBreaker) callWithTimeout(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return b.timeoutError()
		}
		return err
	case <-timer.C:
		return b.timeoutError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *CircuitBreaker) timeoutError() error {
	return domain.WrapError(domain.ErrServiceUnavailable, "adapter "+b.name, ErrCallTimeout)
}

func (b *CircuitBreaker) State() BreakerState {
	return toBreakerState(b.cb.State())
}

func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	state := b.cb.State()
	counts := b.cb.Counts()

	b.mu.Lock()
	lastFailure := b.lastFailureAt
	b.mu.Unlock()

	return BreakerSnapshot{
		Adapter:              b.name,
		State:                toBreakerState(state),
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		TotalFailures:        counts.TotalFailures,
		LastFailureAt:        lastFailure,
	}
}

func (b *CircuitBreaker) noteFailure() {
	b.mu.Lock()
	b.lastFailureAt = time.Now().UTC()
	b.mu.Unlock()
}

func toBreakerState(state gobreaker.State) BreakerState {
	switch state {
	case gobreaker.StateOpen:
		return BreakerOpen
	case gobreaker.StateHalfOpen:
		return BreakerHalfOpen
	default:
		return BreakerClosed
	}
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
