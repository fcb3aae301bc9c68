package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "taskagent/contracts/mq"
	"taskagent/internal/model"
)

var errIncompleteEvent = errors.New("task event missing event_type or task_id")

// TaskEventStore is the task event audit trail.
type TaskEventStore interface {
	Insert(ctx context.Context, e *model.TaskEvent) (bool, error)
}

// TaskEventHandler records every task.* event in the audit table.
type TaskEventHandler struct {
	repo   TaskEventStore
	policy retryPolicy
	logger *zap.Logger
}

func NewTaskEventHandler(
	repo TaskEventStore,
	retryCounter RetryCounter,
	deduper Deduper,
	dlq DeadLetter,
	logger *zap.Logger,
) *TaskEventHandler {
	return &TaskEventHandler{
		repo: repo,
		policy: retryPolicy{
			name:         "task_audit",
			deduper:      deduper,
			retryCounter: retryCounter,
			dlq:          dlq,
			logger:       logger,
		},
		logger: logger,
	}
}

// Handle processes one task.* delivery.
func (h *TaskEventHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.TaskEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return h.policy.fail(ctx, "invalid", mqcontracts.RoutingTaskAll, raw, err)
	}
	if p.EventType == "" || p.TaskID == "" {
		return h.policy.fail(ctx, "invalid", mqcontracts.RoutingTaskAll, raw, errIncompleteEvent)
	}

	key := fmt.Sprintf("%s:%s:%d", p.EventType, p.TaskID, p.OccurredAt.UnixNano())
	if !h.policy.deduper.AcquireOnce(ctx, h.policy.name, key) {
		return nil
	}

	inserted, err := h.repo.Insert(ctx, &model.TaskEvent{
		EventType:  p.EventType,
		TaskID:     p.TaskID,
		UserID:     p.UserID,
		Title:      p.Title,
		OccurredAt: p.OccurredAt,
	})
	if err != nil {
		return h.policy.fail(ctx, key, p.EventType, raw, err)
	}

	h.policy.succeeded(ctx, key)
	if !inserted {
		h.logger.Debug("Task event already recorded", zap.String("key", key))
		return nil
	}
	h.logger.Info("Task event recorded",
		zap.String("event_type", p.EventType),
		zap.String("task_id", p.TaskID),
		zap.Int("user_id", p.UserID),
		zap.String("trace_id", p.TraceID),
	)
	return nil
}
