package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"taskagent/internal/model"
)

// TaskEventRepository is the audit trail of published task events.
type TaskEventRepository struct {
	db *pgxpool.Pool
}

func NewTaskEventRepository(db *pgxpool.Pool) *TaskEventRepository {
	return &TaskEventRepository{db: db}
}

// Insert returns false when the same event was already recorded.
func (r *TaskEventRepository) Insert(ctx context.Context, e *model.TaskEvent) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO task_events (event_type, task_id, user_id, title, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_type, task_id, occurred_at) DO NOTHING
	`, e.EventType, e.TaskID, e.UserID, e.Title, e.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert task event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteBefore removes audit rows for events that occurred before cutoff.
func (r *TaskEventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM task_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune task events: %w", err)
	}
	return tag.RowsAffected(), nil
}
