package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

// ProcessedMessageRepository is the durable dedup backend. The primary key on
// message_id keeps the set unique across restarts and replicas.
type ProcessedMessageRepository struct {
	db *sql.DB
}

func NewProcessedMessageRepository(db *sql.DB) *ProcessedMessageRepository {
	return &ProcessedMessageRepository{db: db}
}

func (r *ProcessedMessageRepository) Seen(ctx context.Context, messageID string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT 1
FROM processed_messages
WHERE message_id = $1
`, messageID)

	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, domain.WrapError(domain.ErrServiceUnavailable, "lookup processed message", err)
	}
	return true, nil
}

func (r *ProcessedMessageRepository) MarkSeen(ctx context.Context, messageID string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO processed_messages (message_id, processed_at)
VALUES ($1, $2)
ON CONFLICT (message_id) DO NOTHING
`, messageID, time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrServiceUnavailable, "mark processed message", err)
	}
	return nil
}

// PurgeBefore removes entries older than cutoff and reports how many were deleted.
func (r *ProcessedMessageRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM processed_messages
WHERE processed_at < $1
`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge processed messages: %w", err)
	}
	return result.RowsAffected()
}
