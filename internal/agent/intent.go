package agent

// Intent is the classified category of a user message.
type Intent string

const (
	IntentCreateTask   Intent = "create_task"
	IntentListTasks    Intent = "list_tasks"
	IntentCompleteTask Intent = "complete_task"
	IntentUpdateTask   Intent = "update_task"
	IntentDeleteTask   Intent = "delete_task"
	IntentGreeting     Intent = "greeting"
	IntentClarify      Intent = "clarify"
	IntentUnknown      Intent = "unknown"
)

// AllIntents lists every intent tag, including those the classifier never emits.
var AllIntents = []Intent{
	IntentCreateTask,
	IntentListTasks,
	IntentCompleteTask,
	IntentUpdateTask,
	IntentDeleteTask,
	IntentGreeting,
	IntentClarify,
	IntentUnknown,
}

// Operation names a task operation exposed by the task tool collaborator.
type Operation string

const (
	OpAddTask      Operation = "add_task"
	OpListTasks    Operation = "list_tasks"
	OpCompleteTask Operation = "complete_task"
	OpUpdateTask   Operation = "update_task"
	OpDeleteTask   Operation = "delete_task"
)

// TaskStatus is the status filter used when listing tasks.
type TaskStatus string

const (
	StatusAll       TaskStatus = "all"
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
)

// Valid reports whether s is one of the known status filters.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusAll, StatusPending, StatusCompleted:
		return true
	}
	return false
}

// Params is the parameter set extracted from a message.
// Empty strings and a nil TaskIndex mean "not present".
type Params struct {
	Title          string     `json:"title,omitempty"`
	Status         TaskStatus `json:"status,omitempty"`
	TaskID         string     `json:"task_id,omitempty"`
	TaskIndex      *int       `json:"task_index,omitempty"`
	TaskIdentifier string     `json:"task_identifier,omitempty"`
	NewTitle       string     `json:"new_title,omitempty"`
	NewDescription string     `json:"new_description,omitempty"`
}

// IsEmpty reports whether no parameter was extracted.
func (p Params) IsEmpty() bool {
	return p.Title == "" &&
		p.Status == "" &&
		p.TaskID == "" &&
		p.TaskIndex == nil &&
		p.TaskIdentifier == "" &&
		p.NewTitle == "" &&
		p.NewDescription == ""
}

// HasTaskReference reports whether any of the task locators is present.
// A zero index still counts as a reference.
func (p Params) HasTaskReference() bool {
	return p.TaskID != "" || p.TaskIndex != nil || p.TaskIdentifier != ""
}

// Result is the output of classification.
type Result struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Params     Params  `json:"parameters"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
