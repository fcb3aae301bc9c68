package mq

import "time"

// MessageUnclassifiedPayload carries a chat message no intent rule matched,
// kept for offline pattern tuning.
type MessageUnclassifiedPayload struct {
	UserID     int       `json:"user_id"`
	Message    string    `json:"message"`
	Confidence float64   `json:"confidence"`
	ReceivedAt time.Time `json:"received_at"`
	TraceID    string    `json:"trace_id,omitempty"`
}
