package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) CreateTask(ctx context.Context, task *domain.Task) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO tasks (id, lead_id, title, description, priority, status, due_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, task.ID, task.LeadID, task.Title, nullableString(task.Description), string(task.Priority), string(task.Status), task.DueAt, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) ListTasksByLead(ctx context.Context, leadID string) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, lead_id, title, COALESCE(description, ''), priority, status, due_at, created_at, updated_at
FROM tasks
WHERE lead_id = $1
ORDER BY due_at ASC, created_at ASC
`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

func scanTask(row rowScanner) (domain.Task, error) {
	var task domain.Task
	var priority, status string
	err := row.Scan(
		&task.ID,
		&task.LeadID,
		&task.Title,
		&task.Description,
		&priority,
		&status,
		&task.DueAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return domain.Task{}, err
	}
	task.Priority = domain.PriorityTier(priority)
	task.Status = domain.TaskStatus(status)
	return task, nil
}
