package model

import "time"

// UnclassifiedMessage is a chat message stored for pattern tuning.
type UnclassifiedMessage struct {
	ID         int64
	UserID     int
	Message    string
	Confidence float64
	ReceivedAt time.Time
}

// TaskEvent is an audit row written by the worker for each task event.
type TaskEvent struct {
	ID         int64
	EventType  string
	TaskID     string
	UserID     int
	Title      string
	OccurredAt time.Time
}
