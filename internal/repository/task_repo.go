package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "taskagent/contracts/mq"
	"taskagent/internal/model"
	"taskagent/pkg/outbox"
	"taskagent/pkg/trace"
)

const taskColumns = `id, user_id, title, description, completed, created_at, updated_at`

// TaskRepository 任务存储；每次变更在同一事务内写入 outbox 事件
type TaskRepository struct {
	db         *pgxpool.Pool
	outboxRepo outbox.EventWriter
	logger     *zap.Logger
}

func NewTaskRepository(db *pgxpool.Pool, outboxRepo outbox.EventWriter, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, outboxRepo: outboxRepo, logger: logger}
}

// Create inserts the task and a task.created event.
func (r *TaskRepository) Create(ctx context.Context, t *model.Task) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.logger.Debug("Inserting task",
		zap.Int("user_id", t.UserID),
		zap.String("title", t.Title),
	)

	return r.inTx(ctx, fixedKey(mqcontracts.RoutingTaskCreated), func(tx pgx.Tx) (*model.Task, error) {
		query := `
			INSERT INTO tasks (id, user_id, title, description, completed)
			VALUES ($1, $2, $3, $4, FALSE)
			RETURNING ` + taskColumns
		created, err := scanTask(tx.QueryRow(ctx, query, t.ID, t.UserID, t.Title, t.Description))
		if err != nil {
			return nil, fmt.Errorf("failed to insert task: %w", err)
		}
		*t = *created
		return created, nil
	})
}

// ListByUser returns the user's tasks ordered by creation time. A nil
// completed filter returns every task.
func (r *TaskRepository) ListByUser(ctx context.Context, userID int, completed *bool) ([]model.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = $1
		AND ($2::boolean IS NULL OR completed = $2)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, userID, completed)
	if err != nil {
		r.logger.Error("Failed to query tasks", zap.Error(err), zap.Int("user_id", userID))
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// GetByID returns model.ErrTaskNotFound when the task is missing or owned by
// another user.
func (r *TaskRepository) GetByID(ctx context.Context, userID int, id uuid.UUID) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	t, err := scanTask(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// Update changes title and/or description; nil fields keep their value.
func (r *TaskRepository) Update(ctx context.Context, userID int, id uuid.UUID, upd model.TaskUpdate) (*model.Task, error) {
	var out *model.Task
	err := r.inTx(ctx, fixedKey(mqcontracts.RoutingTaskUpdated), func(tx pgx.Tx) (*model.Task, error) {
		query := `
			UPDATE tasks
			SET title = COALESCE($3, title),
			    description = COALESCE($4, description),
			    updated_at = NOW()
			WHERE id = $1 AND user_id = $2
			RETURNING ` + taskColumns
		t, err := scanTask(tx.QueryRow(ctx, query, id, userID, upd.Title, upd.Description))
		if err != nil {
			return nil, notFound(err)
		}
		out = t
		return t, nil
	})
	return out, err
}

// MarkCompleted sets completed; completing an already completed task is a
// no-op that still succeeds.
func (r *TaskRepository) MarkCompleted(ctx context.Context, userID int, id uuid.UUID) (*model.Task, error) {
	var out *model.Task
	err := r.inTx(ctx, fixedKey(mqcontracts.RoutingTaskCompleted), func(tx pgx.Tx) (*model.Task, error) {
		query := `
			UPDATE tasks
			SET completed = TRUE, updated_at = NOW()
			WHERE id = $1 AND user_id = $2
			RETURNING ` + taskColumns
		t, err := scanTask(tx.QueryRow(ctx, query, id, userID))
		if err != nil {
			return nil, notFound(err)
		}
		out = t
		return t, nil
	})
	return out, err
}

// ToggleCompleted flips the completion flag. Completing publishes
// task.completed, reopening publishes task.updated.
func (r *TaskRepository) ToggleCompleted(ctx context.Context, userID int, id uuid.UUID) (*model.Task, error) {
	var out *model.Task
	key := func(t *model.Task) string {
		if t.Completed {
			return mqcontracts.RoutingTaskCompleted
		}
		return mqcontracts.RoutingTaskUpdated
	}
	err := r.inTx(ctx, key, func(tx pgx.Tx) (*model.Task, error) {
		query := `
			UPDATE tasks
			SET completed = NOT completed, updated_at = NOW()
			WHERE id = $1 AND user_id = $2
			RETURNING ` + taskColumns
		t, err := scanTask(tx.QueryRow(ctx, query, id, userID))
		if err != nil {
			return nil, notFound(err)
		}
		out = t
		return t, nil
	})
	return out, err
}

// Delete removes the task and returns the deleted row.
func (r *TaskRepository) Delete(ctx context.Context, userID int, id uuid.UUID) (*model.Task, error) {
	var out *model.Task
	err := r.inTx(ctx, fixedKey(mqcontracts.RoutingTaskDeleted), func(tx pgx.Tx) (*model.Task, error) {
		query := `DELETE FROM tasks WHERE id = $1 AND user_id = $2 RETURNING ` + taskColumns
		t, err := scanTask(tx.QueryRow(ctx, query, id, userID))
		if err != nil {
			return nil, notFound(err)
		}
		out = t
		return t, nil
	})
	return out, err
}

// inTx 执行写操作并在同一事务里写入 outbox 事件
func (r *TaskRepository) inTx(ctx context.Context, keyOf func(*model.Task) string, fn func(tx pgx.Tx) (*model.Task, error)) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := fn(tx)
	if err != nil {
		return err
	}
	routingKey := keyOf(t)

	payload := mqcontracts.TaskEventPayload{
		EventType:  routingKey,
		TaskID:     t.ID.String(),
		UserID:     t.UserID,
		Title:      t.Title,
		Completed:  t.Completed,
		OccurredAt: time.Now().UTC(),
		TraceID:    trace.FromContext(ctx),
	}
	if _, err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "task", t.ID.String(), routingKey, payload); err != nil {
		r.logger.Error("Failed to insert task event to outbox",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("Task event queued",
		zap.String("routing_key", routingKey),
		zap.String("task_id", t.ID.String()),
		zap.Int("user_id", t.UserID),
	)
	return nil
}

func fixedKey(key string) func(*model.Task) string {
	return func(*model.Task) string { return key }
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrTaskNotFound
	}
	return err
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	if err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&t.Completed,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}
