package taskops

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskagent/internal/agent"
	"taskagent/internal/model"
	"taskagent/pkg/metrics"
	"taskagent/pkg/rbac"
)

const (
	MaxTitleLength       = agent.MaxTitleLength
	MaxDescriptionLength = agent.MaxDescriptionLength

	notFoundMessage = "Task not found or user does not own this task"
)

// Store is the task persistence the service runs against.
type Store interface {
	Create(ctx context.Context, t *model.Task) error
	ListByUser(ctx context.Context, userID int, completed *bool) ([]model.Task, error)
	GetByID(ctx context.Context, userID int, id uuid.UUID) (*model.Task, error)
	MarkCompleted(ctx context.Context, userID int, id uuid.UUID) (*model.Task, error)
	ToggleCompleted(ctx context.Context, userID int, id uuid.UUID) (*model.Task, error)
	Update(ctx context.Context, userID int, id uuid.UUID, upd model.TaskUpdate) (*model.Task, error)
	Delete(ctx context.Context, userID int, id uuid.UUID) (*model.Task, error)
}

// Service runs task operations on behalf of an authenticated user. Every
// operation returns a Result; store errors never escape as Go errors.
type Service struct {
	store  Store
	logger *zap.Logger
	loc    *time.Location
	perms  *rbac.Checker
}

type Option func(*Service)

// WithLocation sets the zone task timestamps are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithPermissions(c *rbac.Checker) Option {
	return func(s *Service) {
		if c != nil {
			s.perms = c
		}
	}
}

func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:  store,
		logger: logger,
		loc:    time.UTC,
		perms:  rbac.Default,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the display zone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// AddTask creates a task.
func (s *Service) AddTask(ctx context.Context, userID int, title string, description *string) Result {
	return s.run(ctx, agent.OpAddTask, func() Result {
		if r, ok := s.authorize(userID, rbac.PermissionCreateTask, agent.OpAddTask); !ok {
			return r
		}
		if title == "" {
			return failure(CodeInvalidTitle, "Title is required and must be a string", nil)
		}
		if r, ok := validateTitle(title); !ok {
			return r
		}
		if r, ok := validateDescription(description); !ok {
			return r
		}

		t := &model.Task{UserID: userID, Title: title, Description: description}
		if err := s.store.Create(ctx, t); err != nil {
			return s.internal(agent.OpAddTask, userID, "", err)
		}

		s.logger.Info("Task created", zap.Int("user_id", userID), zap.String("task_id", t.ID.String()))
		return success(NewTaskView(*t, s.loc))
	})
}

// ListTasks lists the user's tasks; status is "", all, pending or completed.
func (s *Service) ListTasks(ctx context.Context, userID int, status string) Result {
	return s.run(ctx, agent.OpListTasks, func() Result {
		if r, ok := s.authorize(userID, rbac.PermissionReadTask, agent.OpListTasks); !ok {
			return r
		}

		var completed *bool
		switch agent.TaskStatus(status) {
		case "", agent.StatusAll:
		case agent.StatusPending:
			completed = new(bool)
		case agent.StatusCompleted:
			v := true
			completed = &v
		default:
			s.logger.Warn("Invalid status filter", zap.Int("user_id", userID), zap.String("status", status))
			return failure(CodeInvalidStatus,
				fmt.Sprintf("Status must be 'pending', 'completed', or 'all', got '%s'", status),
				map[string]any{"received": status},
			)
		}

		// 过滤前先编号，列表序号与 task_index 一致
		tasks, err := s.store.ListByUser(ctx, userID, nil)
		if err != nil {
			return s.internal(agent.OpListTasks, userID, "", err)
		}

		views := make([]TaskView, 0, len(tasks))
		for i, t := range tasks {
			if completed != nil && t.Completed != *completed {
				continue
			}
			v := NewTaskView(t, s.loc)
			v.Position = i + 1
			views = append(views, v)
		}
		s.logger.Info("Tasks listed",
			zap.Int("user_id", userID),
			zap.String("status", status),
			zap.Int("count", len(views)),
		)
		return success(views)
	})
}

// CompleteTask marks a task completed. Completion is terminal: completing a
// completed task succeeds and leaves it completed.
func (s *Service) CompleteTask(ctx context.Context, userID int, taskID string) Result {
	return s.run(ctx, agent.OpCompleteTask, func() Result {
		if r, ok := s.authorize(userID, rbac.PermissionUpdateTask, agent.OpCompleteTask); !ok {
			return r
		}
		id, r, ok := s.parseID(agent.OpCompleteTask, userID, taskID)
		if !ok {
			return r
		}

		t, err := s.store.MarkCompleted(ctx, userID, id)
		if err != nil {
			return s.storeFailure(agent.OpCompleteTask, userID, taskID, err)
		}
		return success(NewTaskView(*t, s.loc))
	})
}

// GetTask returns one of the user's tasks.
func (s *Service) GetTask(ctx context.Context, userID int, taskID string) Result {
	return s.run(ctx, agent.OpListTasks, func() Result {
		if r, ok := s.authorize(userID, rbac.PermissionReadTask, agent.OpListTasks); !ok {
			return r
		}
		id, r, ok := s.parseID(agent.OpListTasks, userID, taskID)
		if !ok {
			return r
		}

		t, err := s.store.GetByID(ctx, userID, id)
		if err != nil {
			return s.storeFailure(agent.OpListTasks, userID, taskID, err)
		}
		return success(NewTaskView(*t, s.loc))
	})
}

// ToggleTask flips the completed flag. Only the REST API offers reopening;
// chat and MCP completion stay terminal.
func (s *Service) ToggleTask(ctx context.Context, userID int, taskID string) Result {
	return s.run(ctx, agent.OpCompleteTask, func() Result {
		if r, ok := s.authorize(userID, rbac.PermissionUpdateTask, agent.OpCompleteTask); !ok {
			return r
		}
		id, r, ok := s.parseID(agent.OpCompleteTask, userID, taskID)
		if !ok {
			return r
		}

		t, err := s.store.ToggleCompleted(ctx, userID, id)
		if err != nil {
			return s.storeFailure(agent.OpCompleteTask, userID, taskID, err)
		}
		return success(NewTaskView(*t, s.loc))
	})
}

// UpdateTask changes title and/or description. Field validation runs before
// the id is parsed.
func (s *Service) UpdateTask(ctx context.Context, userID int, taskID string, title, description *string) Result {
	return s.run(ctx, agent.OpUpdateTask, func() Result {
		if r, ok := s.authorize(userID, rbac.PermissionUpdateTask, agent.OpUpdateTask); !ok {
			return r
		}
		upd := model.TaskUpdate{Title: title, Description: description}
		if upd.IsEmpty() {
			return failure(CodeNoUpdateFields, "Must provide at least one field to update (title or description)", nil)
		}
		if title != nil {
			if r, ok := validateTitle(*title); !ok {
				return r
			}
		}
		if r, ok := validateDescription(description); !ok {
			return r
		}
		id, r, ok := s.parseID(agent.OpUpdateTask, userID, taskID)
		if !ok {
			return r
		}

		t, err := s.store.Update(ctx, userID, id, upd)
		if err != nil {
			return s.storeFailure(agent.OpUpdateTask, userID, taskID, err)
		}
		return success(NewTaskView(*t, s.loc))
	})
}

// DeleteTask removes a task and returns what was deleted.
func (s *Service) DeleteTask(ctx context.Context, userID int, taskID string) Result {
	return s.run(ctx, agent.OpDeleteTask, func() Result {
		if r, ok := s.authorize(userID, rbac.PermissionDeleteTask, agent.OpDeleteTask); !ok {
			return r
		}
		id, r, ok := s.parseID(agent.OpDeleteTask, userID, taskID)
		if !ok {
			return r
		}

		t, err := s.store.Delete(ctx, userID, id)
		if err != nil {
			return s.storeFailure(agent.OpDeleteTask, userID, taskID, err)
		}
		return success(NewTaskView(*t, s.loc))
	})
}

// run 统一记录耗时和结果
func (s *Service) run(ctx context.Context, op agent.Operation, fn func() Result) Result {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		r := failure(CodeInternal, "Failed to "+agent.Verb(op)+" task", map[string]any{"error": err.Error()})
		metrics.RecordToolExecution(string(op), r.Status, time.Since(start))
		return r
	}
	r := fn()
	metrics.RecordToolExecution(string(op), r.Status, time.Since(start))
	return r
}

func (s *Service) authorize(userID int, permission string, op agent.Operation) (Result, bool) {
	if userID <= 0 {
		s.logger.Error("Missing user id", zap.String("operation", string(op)))
		return failure(CodeUnauthorized, "User not authenticated", nil), false
	}
	if err := s.perms.CheckPermission(userID, permission); err != nil {
		s.logger.Warn("Permission denied",
			zap.Int("user_id", userID),
			zap.String("permission", permission),
		)
		return failure(CodeUnauthorized, "User is not allowed to "+agent.Verb(op)+" tasks",
			map[string]any{"permission": permission}), false
	}
	return Result{}, true
}

func (s *Service) parseID(op agent.Operation, userID int, taskID string) (uuid.UUID, Result, bool) {
	id, err := uuid.Parse(taskID)
	if err != nil {
		s.logger.Warn("Invalid task id",
			zap.String("operation", string(op)),
			zap.Int("user_id", userID),
			zap.String("task_id", taskID),
		)
		return uuid.Nil, failure(CodeInvalidTaskID,
			fmt.Sprintf("Invalid task ID format: %s", taskID),
			map[string]any{"received": taskID},
		), false
	}
	return id, Result{}, true
}

func (s *Service) storeFailure(op agent.Operation, userID int, taskID string, err error) Result {
	if errors.Is(err, model.ErrTaskNotFound) {
		s.logger.Warn("Task not found or not owned",
			zap.String("operation", string(op)),
			zap.Int("user_id", userID),
			zap.String("task_id", taskID),
		)
		return failure(CodeNotFound, notFoundMessage, map[string]any{"task_id": taskID})
	}
	return s.internal(op, userID, taskID, err)
}

func (s *Service) internal(op agent.Operation, userID int, taskID string, err error) Result {
	s.logger.Error("Task operation failed",
		zap.String("operation", string(op)),
		zap.Int("user_id", userID),
		zap.String("task_id", taskID),
		zap.Error(err),
	)
	return failure(CodeInternal, "Failed to "+agent.Verb(op)+" task", map[string]any{"error": err.Error()})
}

func validateTitle(title string) (Result, bool) {
	n := utf8.RuneCountInString(title)
	if n < 1 || n > MaxTitleLength {
		return failure(CodeInvalidTitle, "Title must be 1-500 characters",
			map[string]any{"received_length": n}), false
	}
	return Result{}, true
}

func validateDescription(description *string) (Result, bool) {
	if description == nil {
		return Result{}, true
	}
	if n := utf8.RuneCountInString(*description); n > MaxDescriptionLength {
		return failure(CodeInvalidDescription, "Description must be 0-5000 characters",
			map[string]any{"received_length": n}), false
	}
	return Result{}, true
}
