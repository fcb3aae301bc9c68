package taskops

import "taskagent/internal/agent"

// ToolSpec describes one operation for capability discovery. Parameters is a
// JSON schema object; the acting user comes from authentication, never from
// the arguments.
type ToolSpec struct {
	Name        agent.Operation `json:"name"`
	Description string          `json:"description"`
	Parameters  map[string]any  `json:"parameters"`
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Registry is the static list of task tools, in listing order.
var Registry = []ToolSpec{
	{
		Name:        agent.OpListTasks,
		Description: "List all tasks for the user, optionally filtered by status (pending, completed, or all)",
		Parameters: objectSchema(map[string]any{
			"status": map[string]any{
				"type":        "string",
				"enum":        []string{string(agent.StatusPending), string(agent.StatusCompleted), string(agent.StatusAll)},
				"description": "Filter tasks by status (default: all)",
			},
		}),
	},
	{
		Name:        agent.OpAddTask,
		Description: "Create a new task",
		Parameters: objectSchema(map[string]any{
			"title":       stringProp("Task title (1-500 characters)"),
			"description": stringProp("Optional task description (0-5000 characters)"),
		}, "title"),
	},
	{
		Name:        agent.OpCompleteTask,
		Description: "Mark a task as completed",
		Parameters: objectSchema(map[string]any{
			"task_id": stringProp("UUID of the task to complete"),
		}, "task_id"),
	},
	{
		Name:        agent.OpUpdateTask,
		Description: "Update a task's title and/or description",
		Parameters: objectSchema(map[string]any{
			"task_id":     stringProp("UUID of the task to update"),
			"title":       stringProp("New title (optional, 1-500 characters)"),
			"description": stringProp("New description (optional, 0-5000 characters)"),
		}, "task_id"),
	},
	{
		Name:        agent.OpDeleteTask,
		Description: "Delete a task permanently",
		Parameters: objectSchema(map[string]any{
			"task_id": stringProp("UUID of the task to delete"),
		}, "task_id"),
	},
}

// Lookup finds a tool by name.
func Lookup(name string) (ToolSpec, bool) {
	for _, t := range Registry {
		if string(t.Name) == name {
			return t, true
		}
	}
	return ToolSpec{}, false
}
