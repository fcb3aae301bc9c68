package taskops

import (
	"time"

	"taskagent/internal/model"
)

// ErrorCode identifies why an operation failed.
type ErrorCode string

const (
	CodeInvalidTitle       ErrorCode = "INVALID_TITLE"
	CodeInvalidDescription ErrorCode = "INVALID_DESCRIPTION"
	CodeInvalidTaskID      ErrorCode = "INVALID_TASK_ID"
	CodeInvalidStatus      ErrorCode = "INVALID_STATUS"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
	CodeNoUpdateFields     ErrorCode = "NO_UPDATE_FIELDS"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ToolError is the structured failure of an operation.
type ToolError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func (e *ToolError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Result is either {status: success, data} or {status: error, error}.
type Result struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ToolError `json:"error,omitempty"`
}

func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

func success(data any) Result {
	return Result{Status: StatusSuccess, Data: data}
}

func failure(code ErrorCode, message string, details map[string]any) Result {
	if details == nil {
		details = map[string]any{}
	}
	return Result{Status: StatusError, Error: &ToolError{Code: code, Message: message, Details: details}}
}

// TaskView is the wire form of a task; timestamps are RFC3339 in the
// display zone. Position is the 1-based place of the task in the user's
// full creation-ordered list, the number task_index refers to. It is zero
// when the view was not built from that list.
type TaskView struct {
	ID          string  `json:"id"`
	UserID      int     `json:"user_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Completed   bool    `json:"completed"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	Position    int     `json:"position,omitempty"`
}

// NewTaskView renders t with timestamps converted to loc.
func NewTaskView(t model.Task, loc *time.Location) TaskView {
	return TaskView{
		ID:          t.ID.String(),
		UserID:      t.UserID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt.In(loc).Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.In(loc).Format(time.RFC3339),
	}
}
