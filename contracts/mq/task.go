package mq

import "time"

// Routing keys published on the events exchange.
const (
	RoutingTaskCreated         = "task.created"
	RoutingTaskUpdated         = "task.updated"
	RoutingTaskCompleted       = "task.completed"
	RoutingTaskDeleted         = "task.deleted"
	RoutingMessageUnclassified = "message.unclassified"

	// 通配符绑定，用于审计所有任务事件
	RoutingTaskAll = "task.*"
)

// TaskEventPayload is published for every task mutation.
type TaskEventPayload struct {
	EventType  string    `json:"event_type"`
	TaskID     string    `json:"task_id"`
	UserID     int       `json:"user_id"`
	Title      string    `json:"title"`
	Completed  bool      `json:"completed"`
	OccurredAt time.Time `json:"occurred_at"`
	TraceID    string    `json:"trace_id,omitempty"`
}
