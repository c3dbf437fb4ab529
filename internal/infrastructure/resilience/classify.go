package resilience

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

type temporary interface {
	Temporary() bool
}

// DefaultRetryablePatterns covers connection resets, timeouts, DNS failures,
// HTTP 429/502/503 and rate limiting.
func DefaultRetryablePatterns() []string {
	return []string{
		"econnreset",
		"connection reset",
		"etimedout",
		"timeout",
		"timed out",
		"enotfound",
		"no such host",
		"eai_again",
		"429",
		"502",
		"503",
		"rate limit",
	}
}

// PatternClassifier marks an error retryable when its text contains one of
// the configured patterns, compared case-insensitively.
type PatternClassifier struct {
	patterns []string
}

func NewPatternClassifier(patterns ...string) PatternClassifier {
	if len(patterns) == 0 {
		patterns = DefaultRetryablePatterns()
	}
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	return PatternClassifier{patterns: normalized}
}

func (c PatternClassifier) Classify(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if IsCircuitOpen(err) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}

	// A rejected request is an answer, not an outage.
	recordFailure := !(domain.IsKind(err, domain.ErrValidation) ||
		domain.IsKind(err, domain.ErrNotFound) ||
		domain.IsKind(err, domain.ErrConflict))

	if domain.IsKind(err, domain.ErrRateLimited) {
		return ErrorClassification{Retryable: true, RecordFailure: recordFailure}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassification{Retryable: true, RecordFailure: recordFailure}
	}
	var temp temporary
	if errors.As(err, &temp) && temp.Temporary() {
		return ErrorClassification{Retryable: true, RecordFailure: recordFailure}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range c.patterns {
		if strings.Contains(msg, p) {
			return ErrorClassification{Retryable: true, RecordFailure: recordFailure}
		}
	}
	return ErrorClassification{Retryable: false, RecordFailure: recordFailure}
}

func defaultClassifier(err error) ErrorClassification {
	return NewPatternClassifier().Classify(err)
}
