package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

type PipelineRepository struct {
	db *sql.DB
}

func NewPipelineRepository(db *sql.DB) *PipelineRepository {
	return &PipelineRepository{db: db}
}

// InsertStateIfAbsent relies on the thread_key primary key to settle concurrent creators.
func (r *PipelineRepository) InsertStateIfAbsent(ctx context.Context, state *domain.PipelineState) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
INSERT INTO pipeline_states (thread_key, stage, created_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (thread_key) DO NOTHING
`, state.ThreadKey, string(state.Stage), state.CreatedAt, state.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert pipeline state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert pipeline state rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *PipelineRepository) GetState(ctx context.Context, threadKey string) (*domain.PipelineState, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT thread_key, stage, created_at, updated_at
FROM pipeline_states
WHERE thread_key = $1
`, threadKey)

	var state domain.PipelineState
	var stage string
	if err := row.Scan(&state.ThreadKey, &stage, &state.CreatedAt, &state.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get pipeline state", fmt.Errorf("thread=%s", threadKey))
		}
		return nil, fmt.Errorf("get pipeline state: %w", err)
	}
	state.Stage = domain.Stage(stage)
	return &state, nil
}

// SaveTransition updates the stage and appends the audit row in one transaction.
func (r *PipelineRepository) SaveTransition(ctx context.Context, transition domain.Transition) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
UPDATE pipeline_states
SET stage = $2, updated_at = $3
WHERE thread_key = $1
`, transition.ThreadKey, string(transition.ToStage), transition.At)
	if err != nil {
		return fmt.Errorf("update pipeline stage: %w", err)
	}
	if err := requireRow(result, "update pipeline stage", transition.ThreadKey); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO pipeline_transitions (thread_key, from_stage, to_stage, triggered_by, at)
VALUES ($1, $2, $3, $4, $5)
`, transition.ThreadKey, string(transition.FromStage), string(transition.ToStage), transition.TriggeredBy, transition.At); err != nil {
		return fmt.Errorf("insert pipeline transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition tx: %w", err)
	}
	return nil
}

func (r *PipelineRepository) ListTransitions(ctx context.Context, threadKey string) ([]domain.Transition, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT thread_key, from_stage, to_stage, triggered_by, at
FROM pipeline_transitions
WHERE thread_key = $1
ORDER BY id ASC
`, threadKey)
	if err != nil {
		return nil, fmt.Errorf("list pipeline transitions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Transition, 0)
	for rows.Next() {
		var tr domain.Transition
		var from, to string
		if err := rows.Scan(&tr.ThreadKey, &from, &to, &tr.TriggeredBy, &tr.At); err != nil {
			return nil, fmt.Errorf("scan pipeline transition: %w", err)
		}
		tr.FromStage = domain.Stage(from)
		tr.ToStage = domain.Stage(to)
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline transitions: %w", err)
	}
	return out, nil
}
