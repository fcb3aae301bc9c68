package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "taskagent/contracts/mq"
	"taskagent/internal/model"
)

type memDeduper struct {
	seen     map[string]bool
	released []string
}

func newMemDeduper() *memDeduper {
	return &memDeduper{seen: map[string]bool{}}
}

func (d *memDeduper) AcquireOnce(_ context.Context, handler, key string) bool {
	k := handler + ":" + key
	if d.seen[k] {
		return false
	}
	d.seen[k] = true
	return true
}

func (d *memDeduper) Release(_ context.Context, handler, key string) {
	k := handler + ":" + key
	delete(d.seen, k)
	d.released = append(d.released, k)
}

type memCounter struct {
	counts map[string]int64
}

func (c *memCounter) IncrementAndGet(_ context.Context, key string) (int64, error) {
	c.counts[key]++
	return c.counts[key], nil
}

func (c *memCounter) Reset(_ context.Context, key string) error {
	delete(c.counts, key)
	return nil
}

type dlqMessage struct {
	routingKey string
	reason     string
}

type memDLQ struct {
	messages []dlqMessage
}

func (d *memDLQ) PublishToDLQ(routingKey string, _ []byte, originalError string) error {
	d.messages = append(d.messages, dlqMessage{routingKey, originalError})
	return nil
}

type memUnclassified struct {
	rows []model.UnclassifiedMessage
	err  error
}

func (m *memUnclassified) Insert(_ context.Context, msg *model.UnclassifiedMessage) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, *msg)
	return nil
}

type memTaskEvents struct {
	rows map[string]model.TaskEvent
	err  error
}

func (m *memTaskEvents) Insert(_ context.Context, e *model.TaskEvent) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	k := fmt.Sprintf("%s|%s|%d", e.EventType, e.TaskID, e.OccurredAt.UnixNano())
	if _, ok := m.rows[k]; ok {
		return false, nil
	}
	m.rows[k] = *e
	return true, nil
}

type harness struct {
	deduper *memDeduper
	counter *memCounter
	dlq     *memDLQ
}

func newHarness() *harness {
	return &harness{
		deduper: newMemDeduper(),
		counter: &memCounter{counts: map[string]int64{}},
		dlq:     &memDLQ{},
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

var receivedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestUnclassifiedHandler_StoresOnce(t *testing.T) {
	h := newHarness()
	repo := &memUnclassified{}
	handler := NewUnclassifiedHandler(repo, h.counter, h.deduper, h.dlq, zap.NewNop())

	raw := mustJSON(t, mqcontracts.MessageUnclassifiedPayload{
		UserID: 3, Message: "the weather is lovely", Confidence: 0.3, ReceivedAt: receivedAt,
	})
	require.NoError(t, handler.Handle(context.Background(), raw))
	require.NoError(t, handler.Handle(context.Background(), raw))

	require.Len(t, repo.rows, 1)
	assert.Equal(t, "the weather is lovely", repo.rows[0].Message)
	assert.Equal(t, 3, repo.rows[0].UserID)
	assert.Empty(t, h.dlq.messages)
}

func TestUnclassifiedHandler_InvalidJSONGoesToDLQ(t *testing.T) {
	h := newHarness()
	handler := NewUnclassifiedHandler(&memUnclassified{}, h.counter, h.deduper, h.dlq, zap.NewNop())

	err := handler.Handle(context.Background(), json.RawMessage(`{"user_id":`))
	assert.NoError(t, err)
	require.Len(t, h.dlq.messages, 1)
	assert.Equal(t, mqcontracts.RoutingMessageUnclassified, h.dlq.messages[0].routingKey)
	assert.Contains(t, h.dlq.messages[0].reason, "json_decode_error")
}

func TestUnclassifiedHandler_RetryableErrorRequeuesUntilLimit(t *testing.T) {
	h := newHarness()
	repo := &memUnclassified{err: fmt.Errorf("failed to insert: %w", context.DeadlineExceeded)}
	handler := NewUnclassifiedHandler(repo, h.counter, h.deduper, h.dlq, zap.NewNop())
	raw := mustJSON(t, mqcontracts.MessageUnclassifiedPayload{UserID: 1, Message: "x", ReceivedAt: receivedAt})

	for i := 0; i < maxRetries; i++ {
		assert.Error(t, handler.Handle(context.Background(), raw), "attempt %d", i+1)
	}
	assert.Len(t, h.deduper.released, maxRetries)
	assert.Empty(t, h.dlq.messages)

	// 超过最大重试次数后进入 DLQ 并 ack
	assert.NoError(t, handler.Handle(context.Background(), raw))
	require.Len(t, h.dlq.messages, 1)
	assert.Empty(t, h.counter.counts)
}

func TestTaskEventHandler(t *testing.T) {
	h := newHarness()
	repo := &memTaskEvents{rows: map[string]model.TaskEvent{}}
	handler := NewTaskEventHandler(repo, h.counter, h.deduper, h.dlq, zap.NewNop())

	raw := mustJSON(t, mqcontracts.TaskEventPayload{
		EventType:  mqcontracts.RoutingTaskCompleted,
		TaskID:     "3b241101-e2bb-4255-8caf-4136c566a962",
		UserID:     5,
		Title:      "buy milk",
		Completed:  true,
		OccurredAt: receivedAt,
	})
	require.NoError(t, handler.Handle(context.Background(), raw))
	require.NoError(t, handler.Handle(context.Background(), raw))
	assert.Len(t, repo.rows, 1)

	// 去重缓存丢失时数据库唯一约束兜底
	h.deduper.seen = map[string]bool{}
	require.NoError(t, handler.Handle(context.Background(), raw))
	assert.Len(t, repo.rows, 1)
}

func TestTaskEventHandler_Failures(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		repoErr error
		wantErr bool
		wantDLQ string
	}{
		{"incomplete event", `{"event_type":"task.created"}`, nil, false, mqcontracts.RoutingTaskAll},
		{"constraint violation", `{"event_type":"task.created","task_id":"t1"}`, &pgconn.PgError{Code: "23503"}, false, "task.created"},
		{"connection error", `{"event_type":"task.created","task_id":"t1"}`, &pgconn.PgError{Code: "08006"}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			repo := &memTaskEvents{rows: map[string]model.TaskEvent{}, err: tt.repoErr}
			handler := NewTaskEventHandler(repo, h.counter, h.deduper, h.dlq, zap.NewNop())

			err := handler.Handle(context.Background(), json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, h.dlq.messages)
				return
			}
			assert.NoError(t, err)
			require.Len(t, h.dlq.messages, 1)
			assert.Equal(t, tt.wantDLQ, h.dlq.messages[0].routingKey)
		})
	}
}
