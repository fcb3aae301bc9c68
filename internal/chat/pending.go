package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"taskagent/internal/agent"
)

// PendingAction is an operation waiting for the user to confirm it.
type PendingAction struct {
	Intent    agent.Intent    `json:"intent"`
	Operation agent.Operation `json:"operation"`
	Params    agent.Params    `json:"parameters"`
	CreatedAt time.Time       `json:"created_at"`
}

// PendingStore keeps pending actions per user. Take removes the action so it
// can run at most once; a missing or expired id yields (nil, nil).
type PendingStore interface {
	Save(ctx context.Context, userID int, action PendingAction, ttl time.Duration) (string, error)
	Take(ctx context.Context, userID int, id string) (*PendingAction, error)
}

// RedisPendingStore stores actions under chat:pending:<user>:<id>.
type RedisPendingStore struct {
	rdb *redis.Client
}

func NewRedisPendingStore(rdb *redis.Client) *RedisPendingStore {
	return &RedisPendingStore{rdb: rdb}
}

func pendingKey(userID int, id string) string {
	return fmt.Sprintf("chat:pending:%d:%s", userID, id)
}

func (s *RedisPendingStore) Save(ctx context.Context, userID int, action PendingAction, ttl time.Duration) (string, error) {
	body, err := json.Marshal(action)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pending action: %w", err)
	}
	id := uuid.NewString()
	if err := s.rdb.Set(ctx, pendingKey(userID, id), body, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store pending action: %w", err)
	}
	return id, nil
}

func (s *RedisPendingStore) Take(ctx context.Context, userID int, id string) (*PendingAction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	// GETDEL 保证同一个确认只执行一次
	body, err := s.rdb.GetDel(ctx, pendingKey(userID, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending action: %w", err)
	}

	var action PendingAction
	if err := json.Unmarshal(body, &action); err != nil {
		return nil, fmt.Errorf("failed to decode pending action: %w", err)
	}
	return &action, nil
}
