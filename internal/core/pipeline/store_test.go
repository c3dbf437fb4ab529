package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/core/ports"
)

type repoFake struct {
	states       map[string]domain.PipelineState
	transitions  []domain.Transition
	inserts      int
	raceOnInsert bool
	saveErr      error
}

func newRepoFake() *repoFake {
	return &repoFake{states: map[string]domain.PipelineState{}}
}

func (f *repoFake) InsertStateIfAbsent(_ context.Context, state *domain.PipelineState) (bool, error) {
	f.inserts++
	if f.raceOnInsert {
		f.states[state.ThreadKey] = domain.PipelineState{ThreadKey: state.ThreadKey, Stage: domain.StageScheduled}
		return false, nil
	}
	if _, ok := f.states[state.ThreadKey]; ok {
		return false, nil
	}
	f.states[state.ThreadKey] = *state
	return true, nil
}

func (f *repoFake) GetState(_ context.Context, threadKey string) (*domain.PipelineState, error) {
	state, ok := f.states[threadKey]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get pipeline state", errors.New(threadKey))
	}
	return &state, nil
}

func (f *repoFake) SaveTransition(_ context.Context, transition domain.Transition) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	state := f.states[transition.ThreadKey]
	state.Stage = transition.ToStage
	state.UpdatedAt = transition.At
	f.states[transition.ThreadKey] = state
	f.transitions = append(f.transitions, transition)
	return nil
}

func (f *repoFake) ListTransitions(_ context.Context, threadKey string) ([]domain.Transition, error) {
	var out []domain.Transition
	for _, tr := range f.transitions {
		if tr.ThreadKey == threadKey {
			out = append(out, tr)
		}
	}
	return out, nil
}

func fixedClock() ports.Clock {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return ports.ClockFunc(func() time.Time { return now })
}

func TestGetOrCreateCreatesNeedsAction(t *testing.T) {
	repo := newRepoFake()
	store := NewStateStore(repo, nil, fixedClock())

	state, err := store.GetOrCreate(context.Background(), "T123")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if state.ThreadKey != "T123" || state.Stage != domain.StageNeedsAction {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	repo := newRepoFake()
	store := NewStateStore(repo, nil, fixedClock())

	first, err := store.GetOrCreate(context.Background(), "T1")
	if err != nil {
		t.Fatalf("first GetOrCreate() error = %v", err)
	}
	if _, err := store.Transition(context.Background(), "T1", domain.StageAwaitingReply, "user:42"); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	second, err := store.GetOrCreate(context.Background(), "T1")
	if err != nil {
		t.Fatalf("second GetOrCreate() error = %v", err)
	}
	if repo.inserts != 1 {
		t.Fatalf("expected exactly one insert, got %d", repo.inserts)
	}
	if second.ThreadKey != first.ThreadKey || second.Stage != domain.StageAwaitingReply {
		t.Fatalf("existing row must be returned unchanged, got %+v", second)
	}
	if len(repo.states) != 1 {
		t.Fatalf("expected a single row, got %d", len(repo.states))
	}
}

func TestGetOrCreateReloadsAfterLostInsertRace(t *testing.T) {
	repo := newRepoFake()
	repo.raceOnInsert = true
	store := NewStateStore(repo, nil, fixedClock())

	state, err := store.GetOrCreate(context.Background(), "T9")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if state.Stage != domain.StageScheduled {
		t.Fatalf("expected the concurrently created row, got %+v", state)
	}
}

func TestGetOrCreateRejectsEmptyKey(t *testing.T) {
	store := NewStateStore(newRepoFake(), nil, fixedClock())
	_, err := store.GetOrCreate(context.Background(), "  ")
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransitionIsPermissiveAndAudited(t *testing.T) {
	repo := newRepoFake()
	store := NewStateStore(repo, nil, fixedClock())
	ctx := context.Background()
	if _, err := store.GetOrCreate(ctx, "T1"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	steps := []domain.Stage{domain.StageCompleted, domain.StageNeedsAction, domain.StageFinance}
	for _, to := range steps {
		state, err := store.Transition(ctx, "T1", to, "system:test")
		if err != nil {
			t.Fatalf("Transition(%s) error = %v", to, err)
		}
		if state.Stage != to {
			t.Fatalf("expected stage %s, got %s", to, state.Stage)
		}
	}

	history, err := store.History(ctx, "T1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(history))
	}
	if history[0].FromStage != domain.StageNeedsAction || history[0].ToStage != domain.StageCompleted {
		t.Fatalf("unexpected first transition: %+v", history[0])
	}
	if history[2].TriggeredBy != "system:test" {
		t.Fatalf("unexpected actor: %q", history[2].TriggeredBy)
	}
}

func TestTransitionToSameStageIsNoop(t *testing.T) {
	repo := newRepoFake()
	store := NewStateStore(repo, nil, fixedClock())
	ctx := context.Background()
	if _, err := store.GetOrCreate(ctx, "T1"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	state, err := store.Transition(ctx, "T1", domain.StageNeedsAction, "user:1")
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if state.Stage != domain.StageNeedsAction {
		t.Fatalf("unexpected stage %s", state.Stage)
	}
	if len(repo.transitions) != 0 {
		t.Fatalf("identity transition must not be logged")
	}
}

func TestTransitionHonoursRestrictivePolicy(t *testing.T) {
	repo := newRepoFake()
	policy := domain.TransitionPolicy{
		domain.StageNeedsAction: {domain.StageAwaitingReply: true},
	}
	store := NewStateStore(repo, policy, fixedClock())
	ctx := context.Background()
	if _, err := store.GetOrCreate(ctx, "T1"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if _, err := store.Transition(ctx, "T1", domain.StageCompleted, "user:1"); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for disallowed transition, got %v", err)
	}
	if _, err := store.Transition(ctx, "T1", domain.StageAwaitingReply, "user:1"); err != nil {
		t.Fatalf("allowed transition failed: %v", err)
	}
}

func TestTransitionValidation(t *testing.T) {
	repo := newRepoFake()
	store := NewStateStore(repo, nil, fixedClock())
	ctx := context.Background()
	if _, err := store.GetOrCreate(ctx, "T1"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if _, err := store.Transition(ctx, "T1", domain.Stage("archived"), "user:1"); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown stage, got %v", err)
	}
	for _, actor := range []string{"", "bob", "robot:1", "user:"} {
		if _, err := store.Transition(ctx, "T1", domain.StageCompleted, actor); !domain.IsKind(err, domain.ErrValidation) {
			t.Fatalf("expected validation error for actor %q, got %v", actor, err)
		}
	}
	if _, err := store.Transition(ctx, "missing", domain.StageCompleted, "user:1"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing thread, got %v", err)
	}
}

func TestIsNewThread(t *testing.T) {
	cases := map[string]bool{
		"New inquiry":          true,
		"Regarding your offer": true,
		"Re: New inquiry":      false,
		"RE[2]: New inquiry":   false,
		"  fwd: brochure":      false,
		"FW: brochure":         false,
		"AW: Anfrage":          false,
		"WG: Anfrage":          false,
		"":                     true,
	}
	for subject, want := range cases {
		if got := IsNewThread(subject); got != want {
			t.Fatalf("IsNewThread(%q) = %v, want %v", subject, got, want)
		}
	}
}
