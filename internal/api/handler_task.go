package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskagent/internal/taskops"
	"taskagent/pkg/logger"
)

// TaskOperations is the task collaborator behind the REST endpoints.
type TaskOperations interface {
	AddTask(ctx context.Context, userID int, title string, description *string) taskops.Result
	ListTasks(ctx context.Context, userID int, status string) taskops.Result
	GetTask(ctx context.Context, userID int, taskID string) taskops.Result
	ToggleTask(ctx context.Context, userID int, taskID string) taskops.Result
	UpdateTask(ctx context.Context, userID int, taskID string, title, description *string) taskops.Result
	DeleteTask(ctx context.Context, userID int, taskID string) taskops.Result
}

type TaskHandler struct {
	ops    TaskOperations
	logger *zap.Logger
}

func NewTaskHandler(ops TaskOperations, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{ops: ops, logger: logger}
}

type taskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// ListTasks handles GET /api/tasks?status=pending|completed|all
func (h *TaskHandler) ListTasks(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, h.ops.ListTasks(c.Request.Context(), userID, c.Query("status")))
}

// CreateTask handles POST /api/tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	title := ""
	if req.Title != nil {
		title = *req.Title
	}
	h.respond(c, http.StatusCreated, h.ops.AddTask(c.Request.Context(), userID, title, req.Description))
}

// GetTask handles GET /api/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, h.ops.GetTask(c.Request.Context(), userID, c.Param("id")))
}

// UpdateTask handles PUT /api/tasks/:id
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	h.respond(c, http.StatusOK, h.ops.UpdateTask(c.Request.Context(), userID, c.Param("id"), req.Title, req.Description))
}

// ToggleComplete handles PATCH /api/tasks/:id/complete
func (h *TaskHandler) ToggleComplete(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, h.ops.ToggleTask(c.Request.Context(), userID, c.Param("id")))
}

// DeleteTask handles DELETE /api/tasks/:id
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, h.ops.DeleteTask(c.Request.Context(), userID, c.Param("id")))
}

// ListTools handles GET /tools
func ListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": taskops.Registry})
}

func (h *TaskHandler) respond(c *gin.Context, okStatus int, res taskops.Result) {
	if res.OK() {
		c.JSON(okStatus, res)
		return
	}
	status := statusFor(res.Error)
	if status == http.StatusInternalServerError {
		logger.WithTrace(c.Request.Context(), h.logger).Error("Task request failed",
			zap.String("path", c.FullPath()),
			zap.String("error", res.Error.Message),
			zap.Any("details", res.Error.Details),
		)
		// 内部错误不向客户端暴露细节
		res.Error = &taskops.ToolError{Code: res.Error.Code, Message: res.Error.Message, Details: map[string]any{}}
	}
	c.JSON(status, res)
}

func statusFor(e *taskops.ToolError) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case taskops.CodeInvalidTitle, taskops.CodeInvalidDescription, taskops.CodeInvalidTaskID,
		taskops.CodeInvalidStatus, taskops.CodeNoUpdateFields:
		return http.StatusBadRequest
	case taskops.CodeNotFound:
		return http.StatusNotFound
	case taskops.CodeUnauthorized:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
