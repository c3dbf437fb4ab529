package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

type Executor struct {
	cfg        Config
	classifier ErrorClassifier

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewExecutor(cfg Config) *Executor {
	cfg = cfg.normalize()
	return &Executor{
		cfg:        cfg,
		classifier: NewPatternClassifier(cfg.RetryablePatterns...).Classify,
		breakers:   make(map[string]*CircuitBreaker),
	}
}

// Call runs fn against the named adapter with retries around individual
// breaker-guarded attempts. It satisfies ports.AdapterGuard.
func (e *Executor) Call(ctx context.Context, adapter string, fn func(context.Context) error) error {
	return e.Execute(ctx, adapter, fn, e.classifier)
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = e.classifier
	}

	if !e.cfg.BreakerEnabled {
		return e.Retry(ctx, op, fn, classifier)
	}

	breaker := e.circuitBreaker(op, classifier)
	return e.Retry(ctx, op, func(ctx context.Context) error {
		return breaker.Execute(ctx, fn)
	}, func(err error) ErrorClassification {
		if IsCircuitOpen(err) {
			return ErrorClassification{Retryable: false, RecordFailure: false}
		}
		return classifier(err)
	})
}

// Retry calls fn up to RetryMaxAttempts times, sleeping with exponential
// backoff between attempts. Errors the classifier does not mark retryable are
// returned on first occurrence. The last error is returned as is.
func (e *Executor) Retry(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if classifier == nil {
		classifier = e.classifier
	}
	maxAttempts := e.cfg.RetryMaxAttempts
	backoff := e.cfg.RetryInitialBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		class := classifier(err)
		if !class.Retryable || attempt == maxAttempts {
			return err
		}

		wait := backoff
		if wait > e.cfg.RetryMaxBackoff {
			wait = e.cfg.RetryMaxBackoff
		}
		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}

		backoff = time.Duration(float64(backoff) * e.cfg.RetryMultiplier)
		if backoff > e.cfg.RetryMaxBackoff {
			backoff = e.cfg.RetryMaxBackoff
		}
	}

	return nil
}

// Breaker returns the breaker for adapter, creating it on first use.
func (e *Executor) Breaker(adapter string) *CircuitBreaker {
	return e.circuitBreaker(adapter, e.classifier)
}

func (e *Executor) Snapshots() []BreakerSnapshot {
	e.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(e.breakers))
	for _, b := range e.breakers {
		breakers = append(breakers, b)
	}
	e.mu.Unlock()

	out := make([]BreakerSnapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Adapter < out[j].Adapter })
	return out
}

func (e *Executor) circuitBreaker(adapter string, classifier ErrorClassifier) *CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[adapter]; ok {
		return breaker
	}
	breaker := NewCircuitBreaker(adapter, e.cfg, classifier)
	e.breakers[adapter] = breaker
	return breaker
}
