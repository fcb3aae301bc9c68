package chat

import (
	"fmt"
	"strings"

	"taskagent/internal/agent"
	"taskagent/internal/taskops"
)

// Kind tells the client how to present a reply.
type Kind string

const (
	KindGreeting      Kind = "greeting"
	KindClarify       Kind = "clarify"
	KindLowConfidence Kind = "low_confidence"
	KindUnknown       Kind = "unknown"
	KindConfirm       Kind = "confirm"
	KindResult        Kind = "result"
	KindError         Kind = "error"
	KindCancelled     Kind = "cancelled"
	KindExpired       Kind = "expired"
)

const (
	NothingToConfirmText = "There is nothing to confirm. The request may have expired, please ask again."
	CancelledText        = "Okay, I won't do that."
	notFoundText         = "I couldn't find that task. Try 'show my tasks' to see your list."
	invalidIDText        = "That doesn't look like a valid task reference. Please use a task number or title."
	unauthorizedText     = "You need to be signed in to manage tasks."
)

// Reply is the answer to one chat turn.
type Reply struct {
	Kind           Kind               `json:"kind"`
	Message        string             `json:"message"`
	Intent         agent.Intent       `json:"intent,omitempty"`
	Confidence     float64            `json:"confidence,omitempty"`
	Parameters     *agent.Params      `json:"parameters,omitempty"`
	Operation      agent.Operation    `json:"operation,omitempty"`
	ConfirmationID string             `json:"confirmation_id,omitempty"`
	Data           any                `json:"data,omitempty"`
	Error          *taskops.ToolError `json:"error,omitempty"`
}

// successText renders a successful operation result.
func successText(op agent.Operation, p agent.Params, data any) string {
	switch op {
	case agent.OpAddTask:
		if v, ok := data.(taskops.TaskView); ok {
			return fmt.Sprintf("Created task: '%s'.", v.Title)
		}
	case agent.OpCompleteTask:
		if v, ok := data.(taskops.TaskView); ok {
			return fmt.Sprintf("Marked '%s' as complete.", v.Title)
		}
	case agent.OpUpdateTask:
		if v, ok := data.(taskops.TaskView); ok {
			return fmt.Sprintf("Updated task: '%s'.", v.Title)
		}
	case agent.OpDeleteTask:
		if v, ok := data.(taskops.TaskView); ok {
			return fmt.Sprintf("Deleted task: '%s'.", v.Title)
		}
	case agent.OpListTasks:
		if views, ok := data.([]taskops.TaskView); ok {
			return listText(p.Status, views)
		}
	}
	return "Done."
}

func listText(status agent.TaskStatus, views []taskops.TaskView) string {
	label := ""
	if status == agent.StatusPending || status == agent.StatusCompleted {
		label = string(status) + " "
	}
	if len(views) == 0 {
		return fmt.Sprintf("You have no %stasks.", label)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here are your %stasks:", label)
	for i, v := range views {
		mark := " "
		if v.Completed {
			mark = "x"
		}
		// 编号与 task_index 使用同一个完整列表
		n := v.Position
		if n == 0 {
			n = i + 1
		}
		fmt.Fprintf(&b, "\n%d. [%s] %s", n, mark, v.Title)
	}
	return b.String()
}

// failureText maps a collaborator failure to what the user sees. Internal
// details stay in the logs.
func failureText(intent agent.Intent, e *taskops.ToolError) string {
	if e == nil {
		return "Something went wrong."
	}
	switch e.Code {
	case taskops.CodeNotFound:
		return notFoundText
	case taskops.CodeInvalidTaskID:
		return invalidIDText
	case taskops.CodeUnauthorized:
		return unauthorizedText
	case taskops.CodeInvalidTitle, taskops.CodeInvalidDescription, taskops.CodeInvalidStatus, taskops.CodeNoUpdateFields:
		return e.Message
	}

	msg := e.Message
	if msg == "" {
		msg = "Something went wrong"
	}
	if hint := agent.FallbackAction(intent); hint != "" {
		return msg + ". " + hint + "."
	}
	return msg + "."
}
