package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestPatternClassifier(t *testing.T) {
	classifier := NewPatternClassifier()

	tests := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "connection reset", err: errors.New("read: ECONNRESET"), retryable: true, record: true},
		{name: "timeout", err: errors.New("request Timed Out"), retryable: true, record: true},
		{name: "dns", err: errors.New("dial tcp: lookup billing: no such host"), retryable: true, record: true},
		{name: "bad gateway", err: errors.New("status 502"), retryable: true, record: true},
		{name: "rate limit text", err: errors.New("Rate Limit exceeded"), retryable: true, record: true},
		{name: "rate limited kind", err: domain.WrapError(domain.ErrRateLimited, "create invoice", errors.New("slow down")), retryable: true, record: true},
		{name: "net timeout", err: fmt.Errorf("call: %w", timeoutErr{}), retryable: true, record: true},
		{name: "plain failure", err: errors.New("invalid json"), retryable: false, record: true},
		{name: "not found", err: domain.WrapError(domain.ErrNotFound, "get", errors.New("x")), retryable: false, record: false},
		{name: "cancelled", err: context.Canceled, retryable: false, record: false},
		{name: "open circuit", err: domain.WrapError(domain.ErrServiceUnavailable, "circuit billing", gobreaker.ErrOpenState), retryable: false, record: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classifier.Classify(tc.err)
			if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
				t.Fatalf("Classify(%v) = %+v, want retryable=%v record=%v", tc.err, got, tc.retryable, tc.record)
			}
		})
	}
}

func TestPatternClassifierCustomPatterns(t *testing.T) {
	classifier := NewPatternClassifier("  Quota  ")
	if !classifier.Classify(errors.New("QUOTA exhausted")).Retryable {
		t.Fatalf("expected custom pattern to match")
	}
	if classifier.Classify(errors.New("timeout")).Retryable {
		t.Fatalf("custom patterns replace the defaults")
	}
}
