package taskops

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskagent/internal/agent"
	"taskagent/internal/model"
	"taskagent/pkg/rbac"
)

// memStore is an in-memory Store keyed by task id.
type memStore struct {
	mu    sync.Mutex
	tasks []model.Task
	clock time.Time
	err   error
}

func newMemStore() *memStore {
	return &memStore{clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memStore) Create(_ context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.clock = m.clock.Add(time.Minute)
	t.ID = uuid.New()
	t.CreatedAt, t.UpdatedAt = m.clock, m.clock
	m.tasks = append(m.tasks, *t)
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID int, completed *bool) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []model.Task{}
	for _, t := range m.tasks {
		if t.UserID != userID || (completed != nil && t.Completed != *completed) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) find(userID int, id uuid.UUID) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	for i, t := range m.tasks {
		if t.ID == id && t.UserID == userID {
			return i, nil
		}
	}
	return 0, model.ErrTaskNotFound
}

func (m *memStore) MarkCompleted(_ context.Context, userID int, id uuid.UUID) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.find(userID, id)
	if err != nil {
		return nil, err
	}
	m.tasks[i].Completed = true
	t := m.tasks[i]
	return &t, nil
}

func (m *memStore) GetByID(_ context.Context, userID int, id uuid.UUID) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.find(userID, id)
	if err != nil {
		return nil, err
	}
	t := m.tasks[i]
	return &t, nil
}

func (m *memStore) ToggleCompleted(_ context.Context, userID int, id uuid.UUID) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.find(userID, id)
	if err != nil {
		return nil, err
	}
	m.tasks[i].Completed = !m.tasks[i].Completed
	t := m.tasks[i]
	return &t, nil
}

func (m *memStore) Update(_ context.Context, userID int, id uuid.UUID, upd model.TaskUpdate) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.find(userID, id)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		m.tasks[i].Title = *upd.Title
	}
	if upd.Description != nil {
		m.tasks[i].Description = upd.Description
	}
	t := m.tasks[i]
	return &t, nil
}

func (m *memStore) Delete(_ context.Context, userID int, id uuid.UUID) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.find(userID, id)
	if err != nil {
		return nil, err
	}
	t := m.tasks[i]
	m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
	return &t, nil
}

func seed(t *testing.T, s *Service, userID int, titles ...string) []TaskView {
	t.Helper()
	var out []TaskView
	for _, title := range titles {
		r := s.AddTask(context.Background(), userID, title, nil)
		require.True(t, r.OK(), "%+v", r.Error)
		out = append(out, r.Data.(TaskView))
	}
	return out
}

func code(r Result) ErrorCode {
	if r.Error == nil {
		return ""
	}
	return r.Error.Code
}

func TestAddTask_Validation(t *testing.T) {
	s := NewService(newMemStore(), nil)
	ctx := context.Background()
	long := strings.Repeat("x", MaxDescriptionLength+1)

	tests := []struct {
		name        string
		userID      int
		title       string
		description *string
		want        ErrorCode
	}{
		{"ok", 1, "buy milk", nil, ""},
		{"empty title", 1, "", nil, CodeInvalidTitle},
		{"title too long", 1, strings.Repeat("é", MaxTitleLength+1), nil, CodeInvalidTitle},
		{"title at limit counts runes", 1, strings.Repeat("é", MaxTitleLength), nil, ""},
		{"description too long", 1, "ok", &long, CodeInvalidDescription},
		{"anonymous", 0, "buy milk", nil, CodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := s.AddTask(ctx, tt.userID, tt.title, tt.description)
			assert.Equal(t, tt.want, code(r))
			if tt.want == "" {
				assert.Equal(t, StatusSuccess, r.Status)
				view := r.Data.(TaskView)
				assert.False(t, view.Completed)
				assert.Equal(t, tt.userID, view.UserID)
			}
		})
	}
}

func TestListTasks_Filters(t *testing.T) {
	store := newMemStore()
	s := NewService(store, nil)
	ctx := context.Background()
	views := seed(t, s, 1, "a", "b", "c")
	seed(t, s, 2, "other user")
	require.True(t, s.CompleteTask(ctx, 1, views[1].ID).OK())

	count := func(status string) int {
		r := s.ListTasks(ctx, 1, status)
		require.True(t, r.OK())
		return len(r.Data.([]TaskView))
	}
	assert.Equal(t, 3, count(""))
	assert.Equal(t, 3, count("all"))
	assert.Equal(t, 2, count("pending"))
	assert.Equal(t, 1, count("completed"))

	r := s.ListTasks(ctx, 1, "archived")
	assert.Equal(t, CodeInvalidStatus, code(r))
	assert.Equal(t, "Status must be 'pending', 'completed', or 'all', got 'archived'", r.Error.Message)
}

func TestCompleteTask(t *testing.T) {
	s := NewService(newMemStore(), nil)
	ctx := context.Background()
	views := seed(t, s, 1, "a")

	r := s.CompleteTask(ctx, 1, views[0].ID)
	require.True(t, r.OK())
	assert.True(t, r.Data.(TaskView).Completed)

	// 已完成的任务再次完成仍是已完成
	r = s.CompleteTask(ctx, 1, views[0].ID)
	require.True(t, r.OK())
	assert.True(t, r.Data.(TaskView).Completed)

	r = s.CompleteTask(ctx, 1, "not-a-uuid")
	assert.Equal(t, CodeInvalidTaskID, code(r))
	assert.Equal(t, "Invalid task ID format: not-a-uuid", r.Error.Message)

	r = s.CompleteTask(ctx, 2, views[0].ID)
	assert.Equal(t, CodeNotFound, code(r))
	assert.Equal(t, "Task not found or user does not own this task", r.Error.Message)
}

func TestUpdateTask_ValidationOrder(t *testing.T) {
	s := NewService(newMemStore(), nil)
	ctx := context.Background()
	views := seed(t, s, 1, "a")
	empty := ""
	title := "b"

	assert.Equal(t, CodeNoUpdateFields, code(s.UpdateTask(ctx, 1, "bad", nil, nil)))
	assert.Equal(t, CodeInvalidTitle, code(s.UpdateTask(ctx, 1, "bad", &empty, nil)))
	assert.Equal(t, CodeInvalidTaskID, code(s.UpdateTask(ctx, 1, "bad", &title, nil)))
	assert.Equal(t, CodeNotFound, code(s.UpdateTask(ctx, 1, uuid.NewString(), &title, nil)))

	r := s.UpdateTask(ctx, 1, views[0].ID, &title, nil)
	require.True(t, r.OK())
	assert.Equal(t, "b", r.Data.(TaskView).Title)
}

func TestDeleteTask(t *testing.T) {
	s := NewService(newMemStore(), nil)
	ctx := context.Background()
	views := seed(t, s, 1, "a")

	r := s.DeleteTask(ctx, 1, views[0].ID)
	require.True(t, r.OK())
	assert.Equal(t, "a", r.Data.(TaskView).Title)

	assert.Equal(t, CodeNotFound, code(s.DeleteTask(ctx, 1, views[0].ID)))
}

func TestStoreErrorIsInternal(t *testing.T) {
	store := newMemStore()
	s := NewService(store, nil)
	store.err = errors.New("connection reset")

	r := s.AddTask(context.Background(), 1, "a", nil)
	assert.Equal(t, CodeInternal, code(r))
	assert.Equal(t, "Failed to create task", r.Error.Message)

	r = s.DeleteTask(context.Background(), 1, uuid.NewString())
	assert.Equal(t, "Failed to delete task", r.Error.Message)
}

func TestPermissionDenied(t *testing.T) {
	guest := rbac.NewChecker(func(int) string { return "guest" })
	s := NewService(newMemStore(), nil, WithPermissions(guest))

	r := s.ListTasks(context.Background(), 1, "")
	assert.Equal(t, CodeUnauthorized, code(r))
}

func TestTaskViewUsesDisplayZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Karachi")
	require.NoError(t, err)
	s := NewService(newMemStore(), nil, WithLocation(loc))

	views := seed(t, s, 1, "a")
	assert.Equal(t, "2025-01-01T05:01:00+05:00", views[0].CreatedAt)
}

func TestExecute_ResolvesReferences(t *testing.T) {
	s := NewService(newMemStore(), nil)
	ctx := context.Background()
	views := seed(t, s, 1, "Buy milk", "Call mom", "Buy milk 2")

	tests := []struct {
		name   string
		params agent.Params
		wantID string
		want   ErrorCode
	}{
		{"by index", agent.Params{TaskIndex: agent.IntPtr(2)}, views[1].ID, ""},
		{"exact title beats substring", agent.Params{TaskIdentifier: "Buy milk 2"}, views[2].ID, ""},
		{"case-insensitive substring", agent.Params{TaskIdentifier: "CALL"}, views[1].ID, ""},
		{"identifier wins over index", agent.Params{TaskIdentifier: "call mom", TaskIndex: agent.IntPtr(1)}, views[1].ID, ""},
		{"unmatched identifier falls back to index", agent.Params{TaskIdentifier: "#3 tomorrow", TaskIndex: agent.IntPtr(3)}, views[2].ID, ""},
		{"task id passes through", agent.Params{TaskID: views[0].ID}, views[0].ID, ""},
		{"index zero", agent.Params{TaskIndex: agent.IntPtr(0)}, "", CodeNotFound},
		{"index past end", agent.Params{TaskIndex: agent.IntPtr(9)}, "", CodeNotFound},
		{"no match", agent.Params{TaskIdentifier: "walk dog"}, "", CodeNotFound},
		{"bad task id", agent.Params{TaskID: "42"}, "", CodeInvalidTaskID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := s.Execute(ctx, 1, agent.OpCompleteTask, tt.params)
			assert.Equal(t, tt.want, code(r))
			if tt.want == "" {
				assert.Equal(t, tt.wantID, r.Data.(TaskView).ID)
			}
		})
	}
}

func TestExecute_Operations(t *testing.T) {
	s := NewService(newMemStore(), nil)
	ctx := context.Background()

	r := s.Execute(ctx, 1, agent.OpAddTask, agent.Params{Title: "buy milk"})
	require.True(t, r.OK())

	r = s.Execute(ctx, 1, agent.OpUpdateTask, agent.Params{TaskIndex: agent.IntPtr(1), NewTitle: "buy bread"})
	require.True(t, r.OK())
	assert.Equal(t, "buy bread", r.Data.(TaskView).Title)

	r = s.Execute(ctx, 1, agent.OpListTasks, agent.Params{Status: agent.StatusPending})
	require.True(t, r.OK())
	assert.Len(t, r.Data.([]TaskView), 1)

	r = s.Execute(ctx, 1, agent.OpDeleteTask, agent.Params{TaskIdentifier: "bread"})
	require.True(t, r.OK())

	r = s.Execute(ctx, 1, agent.Operation("archive_task"), agent.Params{})
	assert.Equal(t, CodeInternal, code(r))
}

func TestListTasks_PositionsFollowFullList(t *testing.T) {
	s := NewService(newMemStore(), nil)
	ctx := context.Background()
	views := seed(t, s, 1, "alpha", "beta", "gamma")
	require.True(t, s.CompleteTask(ctx, 1, views[0].ID).OK())

	r := s.ListTasks(ctx, 1, "pending")
	require.True(t, r.OK())
	pending := r.Data.([]TaskView)
	require.Len(t, pending, 2)
	assert.Equal(t, "beta", pending[0].Title)
	assert.Equal(t, 2, pending[0].Position)
	assert.Equal(t, 3, pending[1].Position)

	// 按列表中显示的编号删除
	r = s.Execute(ctx, 1, agent.OpDeleteTask, agent.Params{TaskIndex: agent.IntPtr(pending[0].Position)})
	require.True(t, r.OK())
	assert.Equal(t, "beta", r.Data.(TaskView).Title)

	r = s.ListTasks(ctx, 1, "all")
	require.True(t, r.OK())
	left := r.Data.([]TaskView)
	require.Len(t, left, 2)
	assert.Equal(t, "alpha", left[0].Title)
	assert.Equal(t, "gamma", left[1].Title)
	assert.Equal(t, 2, left[1].Position)
}

func TestResolve(t *testing.T) {
	s := NewService(newMemStore(), nil)
	ctx := context.Background()
	views := seed(t, s, 1, "Buy milk", "Call mom")

	r := s.Resolve(ctx, 1, agent.OpDeleteTask, agent.Params{TaskIdentifier: "call"})
	require.True(t, r.OK())
	v := r.Data.(TaskView)
	assert.Equal(t, views[1].ID, v.ID)
	assert.Equal(t, "Call mom", v.Title)
	assert.Equal(t, 2, v.Position)

	r = s.Resolve(ctx, 1, agent.OpDeleteTask, agent.Params{TaskID: views[0].ID})
	require.True(t, r.OK())
	assert.Equal(t, "Buy milk", r.Data.(TaskView).Title)

	assert.Equal(t, CodeNotFound, code(s.Resolve(ctx, 1, agent.OpDeleteTask, agent.Params{TaskIndex: agent.IntPtr(3)})))
	assert.Equal(t, CodeNotFound, code(s.Resolve(ctx, 2, agent.OpDeleteTask, agent.Params{TaskID: views[0].ID})))
	assert.Equal(t, CodeNotFound, code(s.Resolve(ctx, 1, agent.OpDeleteTask, agent.Params{})))

	// 解析不修改任务
	r = s.ListTasks(ctx, 1, "")
	require.True(t, r.OK())
	assert.Len(t, r.Data.([]TaskView), 2)
}

func TestRegistry(t *testing.T) {
	require.Len(t, Registry, 5)

	spec, ok := Lookup("update_task")
	require.True(t, ok)
	assert.Equal(t, []string{"task_id"}, spec.Parameters["required"])

	_, ok = Lookup("archive_task")
	assert.False(t, ok)
}

func TestGetAndToggleTask(t *testing.T) {
	s := NewService(newMemStore(), nil)
	ctx := context.Background()
	views := seed(t, s, 1, "a")

	r := s.GetTask(ctx, 1, views[0].ID)
	require.True(t, r.OK())
	assert.Equal(t, "a", r.Data.(TaskView).Title)
	assert.Equal(t, CodeNotFound, code(s.GetTask(ctx, 2, views[0].ID)))
	assert.Equal(t, CodeInvalidTaskID, code(s.GetTask(ctx, 1, "nope")))

	r = s.ToggleTask(ctx, 1, views[0].ID)
	require.True(t, r.OK())
	assert.True(t, r.Data.(TaskView).Completed)
	r = s.ToggleTask(ctx, 1, views[0].ID)
	require.True(t, r.OK())
	assert.False(t, r.Data.(TaskView).Completed)
}
