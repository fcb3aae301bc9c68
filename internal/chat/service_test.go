package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mqcontracts "taskagent/contracts/mq"
	"taskagent/internal/agent"
	"taskagent/internal/taskops"
	"taskagent/pkg/circuitbreaker"
)

type memPending struct {
	mu      sync.Mutex
	next    int
	actions map[string]PendingAction
	ttls    []time.Duration
	err     error
}

func newMemPending() *memPending {
	return &memPending{actions: map[string]PendingAction{}}
}

func (m *memPending) Save(_ context.Context, userID int, action PendingAction, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.next++
	id := fmt.Sprintf("c%d", m.next)
	m.actions[pendingKey(userID, id)] = action
	m.ttls = append(m.ttls, ttl)
	return id, nil
}

func (m *memPending) Take(_ context.Context, userID int, id string) (*PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[pendingKey(userID, id)]
	if !ok {
		return nil, nil
	}
	delete(m.actions, pendingKey(userID, id))
	return &a, nil
}

type call struct {
	userID int
	op     agent.Operation
	params agent.Params
}

type fakeExecutor struct {
	calls    []call
	resolves []call
	result   taskops.Result
	resolved *taskops.Result
}

func (f *fakeExecutor) Execute(_ context.Context, userID int, op agent.Operation, p agent.Params) taskops.Result {
	f.calls = append(f.calls, call{userID, op, p})
	return f.result
}

func (f *fakeExecutor) Resolve(_ context.Context, userID int, op agent.Operation, p agent.Params) taskops.Result {
	f.resolves = append(f.resolves, call{userID, op, p})
	if f.resolved != nil {
		return *f.resolved
	}
	title := p.TaskIdentifier
	if title == "" {
		title = "task"
	}
	return okResult(taskops.TaskView{ID: "task-1", Title: title})
}

type fakePublisher struct {
	keys     []string
	payloads []any
	err      error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, routingKey string, payload any) error {
	f.keys = append(f.keys, routingKey)
	f.payloads = append(f.payloads, payload)
	return f.err
}

func newTestService(exec *fakeExecutor, pending *memPending, opts ...Option) *Service {
	return NewService(agent.NewClassifier(nil), agent.NewSelector(nil), exec, pending, nil, opts...)
}

func okResult(data any) taskops.Result {
	return taskops.Result{Status: taskops.StatusSuccess, Data: data}
}

func TestHandleMessage_ExecutesImmediateOperations(t *testing.T) {
	exec := &fakeExecutor{result: okResult(taskops.TaskView{Title: "buy milk"})}
	s := newTestService(exec, newMemPending())

	reply := s.HandleMessage(context.Background(), 7, "add task buy milk")

	assert.Equal(t, KindResult, reply.Kind)
	assert.Equal(t, "Created task: 'buy milk'.", reply.Message)
	assert.Equal(t, agent.OpAddTask, reply.Operation)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, call{7, agent.OpAddTask, agent.Params{Title: "buy milk"}}, exec.calls[0])
}

func TestHandleMessage_ListRendersTasks(t *testing.T) {
	exec := &fakeExecutor{result: okResult([]taskops.TaskView{
		{Title: "buy milk"},
		{Title: "call mom", Completed: true},
	})}
	s := newTestService(exec, newMemPending())

	reply := s.HandleMessage(context.Background(), 7, "show my tasks")
	assert.Equal(t, "Here are your tasks:\n1. [ ] buy milk\n2. [x] call mom", reply.Message)

	exec.result = okResult([]taskops.TaskView{})
	reply = s.HandleMessage(context.Background(), 7, "show my pending tasks")
	assert.Equal(t, "You have no pending tasks.", reply.Message)
}

func TestHandleMessage_NoExecutionPaths(t *testing.T) {
	tests := []struct {
		message string
		kind    Kind
		text    string
	}{
		{"hello", KindGreeting, agent.GreetingText},
		{"delete task", KindClarify, "Which task should I delete? Please specify a task number or title."},
		{"the weather is lovely", KindLowConfidence, "I'm not confident about what you want to do (confidence: 30%). Can you rephrase that?"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			exec := &fakeExecutor{}
			reply := newTestService(exec, newMemPending()).HandleMessage(context.Background(), 1, tt.message)
			assert.Equal(t, tt.kind, reply.Kind)
			assert.Equal(t, tt.text, reply.Message)
			assert.Empty(t, exec.calls)
		})
	}
}

func TestHandleMessage_ConfirmationFlow(t *testing.T) {
	exec := &fakeExecutor{result: okResult(taskops.TaskView{Title: "groceries"})}
	pending := newMemPending()
	s := newTestService(exec, pending, WithConfirmationTTL(time.Minute))
	ctx := context.Background()

	reply := s.HandleMessage(ctx, 3, "delete task 'groceries'")
	require.Equal(t, KindConfirm, reply.Kind)
	assert.Equal(t, "I'll delete 'groceries'. This cannot be undone. Should I proceed?", reply.Message)
	assert.NotEmpty(t, reply.ConfirmationID)
	assert.Empty(t, exec.calls)
	assert.Equal(t, []time.Duration{time.Minute}, pending.ttls)

	// 其他用户无法确认
	other := s.Confirm(ctx, 4, reply.ConfirmationID, true)
	assert.Equal(t, KindExpired, other.Kind)
	assert.Empty(t, exec.calls)

	done := s.Confirm(ctx, 3, reply.ConfirmationID, true)
	assert.Equal(t, KindResult, done.Kind)
	assert.Equal(t, "Deleted task: 'groceries'.", done.Message)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, agent.OpDeleteTask, exec.calls[0].op)
	assert.Equal(t, "groceries", exec.calls[0].params.TaskIdentifier)
	assert.Equal(t, "task-1", exec.calls[0].params.TaskID)

	again := s.Confirm(ctx, 3, reply.ConfirmationID, true)
	assert.Equal(t, KindExpired, again.Kind)
	assert.Equal(t, NothingToConfirmText, again.Message)
	assert.Len(t, exec.calls, 1)
}

func TestHandleMessage_ConfirmationNamesResolvedTask(t *testing.T) {
	exec := &fakeExecutor{resolved: &taskops.Result{
		Status: taskops.StatusSuccess,
		Data:   taskops.TaskView{ID: "task-9", Title: "Call mom", Position: 2},
	}}
	pending := newMemPending()
	s := newTestService(exec, pending)

	reply := s.HandleMessage(context.Background(), 3, "mark task #2 as done")
	require.Equal(t, KindConfirm, reply.Kind)
	assert.Equal(t, "I'll mark 'Call mom' as complete. Should I go ahead?", reply.Message)
	assert.Equal(t, taskops.TaskView{ID: "task-9", Title: "Call mom", Position: 2}, reply.Data)
	require.Len(t, exec.resolves, 1)
	assert.Equal(t, agent.OpCompleteTask, exec.resolves[0].op)

	stored := pending.actions[pendingKey(3, reply.ConfirmationID)]
	assert.Equal(t, "task-9", stored.Params.TaskID)
	assert.Equal(t, agent.IntPtr(2), stored.Params.TaskIndex)
}

func TestHandleMessage_UnresolvedReferenceIsNotStored(t *testing.T) {
	exec := &fakeExecutor{resolved: &taskops.Result{
		Status: taskops.StatusError,
		Error: &taskops.ToolError{
			Code:    taskops.CodeNotFound,
			Message: "Task not found or user does not own this task",
			Details: map[string]any{"task_index": 9},
		},
	}}
	pending := newMemPending()

	reply := newTestService(exec, pending).HandleMessage(context.Background(), 3, "remove 9")
	assert.Equal(t, KindError, reply.Kind)
	assert.Equal(t, notFoundText, reply.Message)
	assert.Empty(t, reply.ConfirmationID)
	require.NotNil(t, reply.Error)
	assert.Equal(t, taskops.CodeNotFound, reply.Error.Code)
	assert.Empty(t, pending.actions)
	assert.Empty(t, exec.calls)
}

func TestConfirm_Reject(t *testing.T) {
	exec := &fakeExecutor{}
	s := newTestService(exec, newMemPending())
	ctx := context.Background()

	reply := s.HandleMessage(ctx, 3, "mark task #2 as done")
	require.Equal(t, KindConfirm, reply.Kind)

	cancelled := s.Confirm(ctx, 3, reply.ConfirmationID, false)
	assert.Equal(t, KindCancelled, cancelled.Kind)
	assert.Empty(t, exec.calls)

	assert.Equal(t, KindExpired, s.Confirm(ctx, 3, reply.ConfirmationID, true).Kind)
}

func TestHandleMessage_PendingStoreFailure(t *testing.T) {
	pending := newMemPending()
	pending.err = errors.New("redis down")
	reply := newTestService(&fakeExecutor{}, pending).HandleMessage(context.Background(), 1, "delete task 2")

	assert.Equal(t, KindError, reply.Kind)
	assert.Equal(t, "Failed to delete task. You can try 'delete task #1'.", reply.Message)
}

func TestHandleMessage_FailureMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *taskops.ToolError
		want string
	}{
		{"not found", &taskops.ToolError{Code: taskops.CodeNotFound, Message: "x"}, notFoundText},
		{"invalid id", &taskops.ToolError{Code: taskops.CodeInvalidTaskID, Message: "x"}, invalidIDText},
		{"validation passes through", &taskops.ToolError{Code: taskops.CodeInvalidTitle, Message: "Title must be 1-500 characters"}, "Title must be 1-500 characters"},
		{"internal", &taskops.ToolError{
			Code:    taskops.CodeInternal,
			Message: "Failed to create task",
			Details: map[string]any{"error": "pq: connection refused"},
		}, "Failed to create task. You can try 'add task title'."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{result: taskops.Result{Status: taskops.StatusError, Error: tt.err}}
			reply := newTestService(exec, newMemPending()).HandleMessage(context.Background(), 1, "add task buy milk")

			assert.Equal(t, KindError, reply.Kind)
			assert.Equal(t, tt.want, reply.Message)
			require.NotNil(t, reply.Error)
			if tt.err.Code == taskops.CodeInternal {
				assert.Nil(t, reply.Error.Details)
			}
		})
	}
}

func TestHandleMessage_PublishesUnclassified(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestService(&fakeExecutor{}, newMemPending(), WithPublisher(pub, nil))

	s.HandleMessage(context.Background(), 9, "the weather is lovely")
	s.HandleMessage(context.Background(), 9, "add task x")

	require.Equal(t, []string{mqcontracts.RoutingMessageUnclassified}, pub.keys)
	payload := pub.payloads[0].(mqcontracts.MessageUnclassifiedPayload)
	assert.Equal(t, 9, payload.UserID)
	assert.Equal(t, "the weather is lovely", payload.Message)
	assert.InDelta(t, 0.3, payload.Confidence, 1e-9)
	assert.NotEmpty(t, payload.TraceID)
}

func TestHandleMessage_PublishFailureTripsBreaker(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Hour})
	s := newTestService(&fakeExecutor{}, newMemPending(), WithPublisher(pub, cb))

	for i := 0; i < 4; i++ {
		reply := s.HandleMessage(context.Background(), 1, "blah blah")
		assert.Equal(t, KindLowConfidence, reply.Kind)
	}

	assert.Len(t, pub.keys, 2)
	assert.Equal(t, circuitbreaker.StateOpen, cb.GetState())
}

func TestRedisPendingStore_RejectsMalformedID(t *testing.T) {
	s := NewRedisPendingStore(nil)
	action, err := s.Take(context.Background(), 1, "not-a-uuid")
	assert.NoError(t, err)
	assert.Nil(t, action)

	assert.Equal(t, "chat:pending:5:abc", pendingKey(5, "abc"))
}
