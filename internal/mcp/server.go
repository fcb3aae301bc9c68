// Package mcp exposes the task tools over the Model Context Protocol so an
// assistant can manage one user's tasks directly.
package mcp

import (
	"context"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"taskagent/internal/agent"
	"taskagent/internal/taskops"
)

// Operations is the task collaborator the tools delegate to.
type Operations interface {
	AddTask(ctx context.Context, userID int, title string, description *string) taskops.Result
	ListTasks(ctx context.Context, userID int, status string) taskops.Result
	CompleteTask(ctx context.Context, userID int, taskID string) taskops.Result
	UpdateTask(ctx context.Context, userID int, taskID string, title, description *string) taskops.Result
	DeleteTask(ctx context.Context, userID int, taskID string) taskops.Result
}

// Server serves the task tools for a fixed user.
type Server struct {
	server *gomcp.Server
	ops    Operations
	userID int
	logger *zap.Logger
}

func NewServer(ops Operations, userID int, version string, logger *zap.Logger) *Server {
	if version == "" {
		version = "dev"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		ops:    ops,
		userID: userID,
		logger: logger,
	}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "taskagent", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying server, used by tests to attach other
// transports.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type listTasksInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter tasks by status: pending, completed or all (default all)"`
}

type listTasksOutput struct {
	Tasks []taskops.TaskView `json:"tasks"`
	Count int                `json:"count"`
}

type addTaskInput struct {
	Title       string  `json:"title" jsonschema:"task title, 1-500 characters"`
	Description *string `json:"description,omitempty" jsonschema:"optional task description, up to 5000 characters"`
}

type taskIDInput struct {
	TaskID string `json:"task_id" jsonschema:"UUID of the task"`
}

type updateTaskInput struct {
	TaskID      string  `json:"task_id" jsonschema:"UUID of the task to update"`
	Title       *string `json:"title,omitempty" jsonschema:"new title, 1-500 characters"`
	Description *string `json:"description,omitempty" jsonschema:"new description, up to 5000 characters"`
}

type taskOutput struct {
	Task taskops.TaskView `json:"task"`
}

// --- Tool registration ---

func (s *Server) tool(op agent.Operation) *gomcp.Tool {
	spec, _ := taskops.Lookup(string(op))
	return &gomcp.Tool{Name: string(op), Description: spec.Description}
}

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, s.tool(agent.OpListTasks), s.handleListTasks)
	gomcp.AddTool(s.server, s.tool(agent.OpAddTask), s.handleAddTask)
	gomcp.AddTool(s.server, s.tool(agent.OpCompleteTask), s.handleCompleteTask)
	gomcp.AddTool(s.server, s.tool(agent.OpUpdateTask), s.handleUpdateTask)
	gomcp.AddTool(s.server, s.tool(agent.OpDeleteTask), s.handleDeleteTask)
}

// --- Tool handlers ---

func (s *Server) handleListTasks(ctx context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	res := s.ops.ListTasks(ctx, s.userID, input.Status)
	if !res.OK() {
		return s.errorResult(agent.OpListTasks, res), listTasksOutput{}, nil
	}
	views, _ := res.Data.([]taskops.TaskView)
	if views == nil {
		views = []taskops.TaskView{}
	}
	return nil, listTasksOutput{Tasks: views, Count: len(views)}, nil
}

func (s *Server) handleAddTask(ctx context.Context, _ *gomcp.CallToolRequest, input addTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	return s.taskResult(agent.OpAddTask, s.ops.AddTask(ctx, s.userID, input.Title, input.Description))
}

func (s *Server) handleCompleteTask(ctx context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, taskOutput, error) {
	return s.taskResult(agent.OpCompleteTask, s.ops.CompleteTask(ctx, s.userID, input.TaskID))
}

func (s *Server) handleUpdateTask(ctx context.Context, _ *gomcp.CallToolRequest, input updateTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	return s.taskResult(agent.OpUpdateTask, s.ops.UpdateTask(ctx, s.userID, input.TaskID, input.Title, input.Description))
}

func (s *Server) handleDeleteTask(ctx context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, taskOutput, error) {
	return s.taskResult(agent.OpDeleteTask, s.ops.DeleteTask(ctx, s.userID, input.TaskID))
}

func (s *Server) taskResult(op agent.Operation, res taskops.Result) (*gomcp.CallToolResult, taskOutput, error) {
	if !res.OK() {
		return s.errorResult(op, res), taskOutput{}, nil
	}
	view, _ := res.Data.(taskops.TaskView)
	return nil, taskOutput{Task: view}, nil
}

// errorResult 把协作方的错误码和消息作为工具错误返回
func (s *Server) errorResult(op agent.Operation, res taskops.Result) *gomcp.CallToolResult {
	msg := "INTERNAL_ERROR: Failed to " + agent.Verb(op) + " task"
	if res.Error != nil {
		msg = res.Error.Error()
	}
	s.logger.Warn("MCP tool failed",
		zap.String("tool", string(op)),
		zap.Int("user_id", s.userID),
		zap.String("error", msg),
	)
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
