// Package pipeline tracks the per-thread workflow stage and its audit trail.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/core/ports"
)

var replyPrefix = regexp.MustCompile(`(?i)^\s*(re|fw|fwd|aw|wg|sv|antw)(\[\d+\])?\s*:`)

// IsNewThread reports whether a subject opens a conversation rather than replying to or forwarding one.
func IsNewThread(subject string) bool {
	return !replyPrefix.MatchString(subject)
}

type StateStore struct {
	repo   ports.PipelineRepository
	policy domain.TransitionPolicy
	clock  ports.Clock
}

func NewStateStore(repo ports.PipelineRepository, policy domain.TransitionPolicy, clock ports.Clock) *StateStore {
	if policy == nil {
		policy = domain.AllowAllTransitions()
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &StateStore{
		repo:   repo,
		policy: policy,
		clock:  clock,
	}
}

// GetOrCreate returns the existing row for threadKey or creates one in needs_action.
func (s *StateStore) GetOrCreate(ctx context.Context, threadKey string) (*domain.PipelineState, error) {
	threadKey = strings.TrimSpace(threadKey)
	if threadKey == "" {
		return nil, domain.WrapError(domain.ErrValidation, "get or create pipeline state", errors.New("thread key is required"))
	}

	state, err := s.repo.GetState(ctx, threadKey)
	if err == nil {
		return state, nil
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load pipeline state: %w", err)
	}

	now := s.clock.Now()
	created := &domain.PipelineState{
		ThreadKey: threadKey,
		Stage:     domain.StageNeedsAction,
		CreatedAt: now,
		UpdatedAt: now,
	}
	inserted, err := s.repo.InsertStateIfAbsent(ctx, created)
	if err != nil {
		return nil, fmt.Errorf("insert pipeline state: %w", err)
	}
	if inserted {
		return created, nil
	}

	// Another writer created the row between our read and insert.
	state, err = s.repo.GetState(ctx, threadKey)
	if err != nil {
		return nil, fmt.Errorf("reload pipeline state: %w", err)
	}
	return state, nil
}

func (s *StateStore) Get(ctx context.Context, threadKey string) (*domain.PipelineState, error) {
	return s.repo.GetState(ctx, strings.TrimSpace(threadKey))
}

// Transition moves a thread to another stage and appends the audit record.
// Moving to the current stage is a no-op and records nothing.
func (s *StateStore) Transition(ctx context.Context, threadKey string, to domain.Stage, triggeredBy string) (*domain.PipelineState, error) {
	threadKey = strings.TrimSpace(threadKey)
	if threadKey == "" {
		return nil, domain.WrapError(domain.ErrValidation, "transition", errors.New("thread key is required"))
	}
	if !to.Valid() {
		return nil, domain.WrapError(domain.ErrValidation, "transition", fmt.Errorf("unknown stage %q", to))
	}
	if err := ValidateActor(triggeredBy); err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "transition", err)
	}

	current, err := s.repo.GetState(ctx, threadKey)
	if err != nil {
		return nil, fmt.Errorf("load pipeline state: %w", err)
	}
	if current.Stage == to {
		return current, nil
	}
	if !s.policy.Allows(current.Stage, to) {
		return nil, domain.WrapError(domain.ErrValidation, "transition",
			fmt.Errorf("%s -> %s is not allowed", current.Stage, to))
	}

	now := s.clock.Now()
	transition := domain.Transition{
		ThreadKey:   threadKey,
		FromStage:   current.Stage,
		ToStage:     to,
		TriggeredBy: triggeredBy,
		At:          now,
	}
	if err := s.repo.SaveTransition(ctx, transition); err != nil {
		return nil, fmt.Errorf("save transition: %w", err)
	}

	updated := *current
	updated.Stage = to
	updated.UpdatedAt = now
	return &updated, nil
}

func (s *StateStore) History(ctx context.Context, threadKey string) ([]domain.Transition, error) {
	return s.repo.ListTransitions(ctx, strings.TrimSpace(threadKey))
}

// ValidateActor accepts "user:<id>" and "system:<rule-name>".
func ValidateActor(actor string) error {
	kind, name, ok := strings.Cut(strings.TrimSpace(actor), ":")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("triggered_by must look like user:<id> or system:<rule>, got %q", actor)
	}
	switch kind {
	case "user", "system":
		return nil
	default:
		return fmt.Errorf("unknown actor kind %q", kind)
	}
}

func SystemActor(rule string) string {
	return "system:" + rule
}
