package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EventWriter inserts an event inside a caller-owned transaction.
type EventWriter interface {
	InsertEvent(ctx context.Context, tx pgx.Tx, event *Event) error
}

// NewEvent builds a pending event with payload encoded as JSON.
func NewEvent(aggregateType, aggregateID, routingKey string, payload any) (*Event, error) {
	if routingKey == "" {
		return nil, fmt.Errorf("outbox event for %s %s has no routing key", aggregateType, aggregateID)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	return &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       body,
		Status:        StatusPending,
	}, nil
}

// InsertEventInTx 在业务事务中写入事件，事务回滚时事件一并丢弃
func InsertEventInTx(ctx context.Context, tx pgx.Tx, w EventWriter, aggregateType, aggregateID, routingKey string, payload any) (*Event, error) {
	event, err := NewEvent(aggregateType, aggregateID, routingKey, payload)
	if err != nil {
		return nil, err
	}
	if err := w.InsertEvent(ctx, tx, event); err != nil {
		return nil, err
	}
	return event, nil
}
