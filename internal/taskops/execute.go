package taskops

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"taskagent/internal/agent"
	"taskagent/internal/model"
	"taskagent/pkg/rbac"
)

// Execute runs a selected operation with parameters extracted from a chat
// message. Task references resolve in this order: task_id as given, then
// task_identifier against titles (exact, then case-insensitive substring),
// then task_index as a 1-based position in the creation-ordered list.
func (s *Service) Execute(ctx context.Context, userID int, op agent.Operation, p agent.Params) Result {
	switch op {
	case agent.OpAddTask:
		var description *string
		if p.NewDescription != "" {
			description = &p.NewDescription
		}
		return s.AddTask(ctx, userID, p.Title, description)

	case agent.OpListTasks:
		return s.ListTasks(ctx, userID, string(p.Status))

	case agent.OpCompleteTask:
		target, r, ok := s.resolve(ctx, userID, op, p)
		if !ok {
			return r
		}
		return s.CompleteTask(ctx, userID, target.ID.String())

	case agent.OpUpdateTask:
		target, r, ok := s.resolve(ctx, userID, op, p)
		if !ok {
			return r
		}
		var title, description *string
		if p.NewTitle != "" {
			title = &p.NewTitle
		}
		if p.NewDescription != "" {
			description = &p.NewDescription
		}
		return s.UpdateTask(ctx, userID, target.ID.String(), title, description)

	case agent.OpDeleteTask:
		target, r, ok := s.resolve(ctx, userID, op, p)
		if !ok {
			return r
		}
		return s.DeleteTask(ctx, userID, target.ID.String())
	}

	s.logger.Error("Unknown operation", zap.String("operation", string(op)))
	return failure(CodeInternal, "Unknown operation: "+string(op), map[string]any{"operation": string(op)})
}

// Resolve finds the task a chat reference points at without changing it.
// Data is the TaskView, with Position set when the reference was matched
// against the list.
func (s *Service) Resolve(ctx context.Context, userID int, op agent.Operation, p agent.Params) Result {
	if err := ctx.Err(); err != nil {
		return failure(CodeInternal, "Request cancelled", nil)
	}
	target, r, ok := s.resolve(ctx, userID, op, p)
	if !ok {
		return r
	}
	v := NewTaskView(target.Task, s.loc)
	v.Position = target.position
	return success(v)
}

type resolved struct {
	model.Task
	position int
}

// resolve 把参数中的任务引用解析为任务
func (s *Service) resolve(ctx context.Context, userID int, op agent.Operation, p agent.Params) (resolved, Result, bool) {
	if p.TaskID == "" && p.TaskIdentifier == "" && p.TaskIndex == nil {
		return resolved{}, failure(CodeNotFound, notFoundMessage, nil), false
	}
	if r, ok := s.authorize(userID, rbac.PermissionReadTask, op); !ok {
		return resolved{}, r, false
	}

	if p.TaskID != "" {
		id, r, ok := s.parseID(op, userID, p.TaskID)
		if !ok {
			return resolved{}, r, false
		}
		t, err := s.store.GetByID(ctx, userID, id)
		if err != nil {
			return resolved{}, s.storeFailure(op, userID, p.TaskID, err), false
		}
		return resolved{Task: *t}, Result{}, true
	}

	tasks, err := s.store.ListByUser(ctx, userID, nil)
	if err != nil {
		return resolved{}, s.internal(op, userID, "", err), false
	}

	if p.TaskIdentifier != "" {
		if i, ok := matchTitle(tasks, p.TaskIdentifier); ok {
			return resolved{Task: tasks[i], position: i + 1}, Result{}, true
		}
	}
	if p.TaskIndex != nil {
		i := *p.TaskIndex
		if i >= 1 && i <= len(tasks) {
			return resolved{Task: tasks[i-1], position: i}, Result{}, true
		}
	}

	details := map[string]any{}
	if p.TaskIdentifier != "" {
		details["task_identifier"] = p.TaskIdentifier
	}
	if p.TaskIndex != nil {
		details["task_index"] = *p.TaskIndex
	}
	s.logger.Warn("Task reference not resolved",
		zap.String("operation", string(op)),
		zap.Int("user_id", userID),
		zap.Any("reference", details),
	)
	return resolved{}, failure(CodeNotFound, notFoundMessage, details), false
}

func matchTitle(tasks []model.Task, identifier string) (int, bool) {
	for i, t := range tasks {
		if t.Title == identifier {
			return i, true
		}
	}
	needle := strings.ToLower(identifier)
	for i, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), needle) {
			return i, true
		}
	}
	return -1, false
}
