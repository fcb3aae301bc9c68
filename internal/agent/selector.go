package agent

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ConfidenceThreshold is the minimum confidence required before any
// operation is selected. It is the same for every caller.
const ConfidenceThreshold = 0.6

// Title and description bounds in runes. The task collaborator enforces the
// same limits on its side.
const (
	MaxTitleLength       = 500
	MaxDescriptionLength = 5000
)

// UnknownText lists example phrasings for messages that matched nothing.
const UnknownText = "I didn't understand that. Try 'add task title', 'show my tasks', 'mark task #1 as done', or 'delete task #1'."

// operationTable maps actionable intents to task operations. Read-only.
var operationTable = map[Intent]Operation{
	IntentCreateTask:   OpAddTask,
	IntentListTasks:    OpListTasks,
	IntentCompleteTask: OpCompleteTask,
	IntentUpdateTask:   OpUpdateTask,
	IntentDeleteTask:   OpDeleteTask,
}

// fallbackTable holds one example phrasing per actionable intent. Read-only.
var fallbackTable = map[Intent]string{
	IntentCreateTask:   "You can try 'add task title'",
	IntentListTasks:    "You can try 'show my tasks'",
	IntentCompleteTask: "You can try 'mark task #1 as done'",
	IntentUpdateTask:   "You can try 'update task #1 to new title'",
	IntentDeleteTask:   "You can try 'delete task #1'",
}

// verbs used in "Which task should I ...?" prompts
var operationVerbs = map[Operation]string{
	OpAddTask:      "create",
	OpListTasks:    "list",
	OpCompleteTask: "complete",
	OpUpdateTask:   "update",
	OpDeleteTask:   "delete",
}

// Verb returns the user-facing verb for op ("create", "delete", ...).
func Verb(op Operation) string {
	if v, ok := operationVerbs[op]; ok {
		return v
	}
	return "run"
}

// OperationFor returns the operation mapped to intent, if any.
func OperationFor(intent Intent) (Operation, bool) {
	op, ok := operationTable[intent]
	return op, ok
}

// FallbackAction returns a suggested phrasing for intent, or "" for
// greeting, clarify, unknown and unmapped intents.
func FallbackAction(intent Intent) string {
	return fallbackTable[intent]
}

// Selection is the outcome of action selection. At most one of Operation
// and ErrorMessage is set; both empty means "no action, not an error".
type Selection struct {
	Operation    Operation
	ErrorMessage string
}

// NoAction reports whether nothing should be executed and nothing is wrong.
func (s Selection) NoAction() bool {
	return s.Operation == "" && s.ErrorMessage == ""
}

// MarshalJSON renders absent fields as null.
func (s Selection) MarshalJSON() ([]byte, error) {
	out := struct {
		Operation    *string `json:"operation_name"`
		ErrorMessage *string `json:"error_message"`
	}{}
	if s.Operation != "" {
		op := string(s.Operation)
		out.Operation = &op
	}
	if s.ErrorMessage != "" {
		msg := s.ErrorMessage
		out.ErrorMessage = &msg
	}
	return json.Marshal(out)
}

// Selector decides which task operation to run for a classification, or
// explains why none can run.
type Selector struct {
	logger *zap.Logger
}

// NewSelector creates a Selector. A nil logger disables logging.
func NewSelector(logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{logger: logger}
}

// Select maps (intent, confidence, params) to an operation or an error message.
func (s *Selector) Select(intent Intent, confidence float64, p Params) Selection {
	if confidence < ConfidenceThreshold {
		s.logger.Warn("Confidence below threshold",
			zap.String("intent", string(intent)),
			zap.Float64("confidence", confidence),
			zap.Float64("threshold", ConfidenceThreshold),
		)
		return Selection{ErrorMessage: fmt.Sprintf(
			"I'm not confident about what you want to do (confidence: %.0f%%). Can you rephrase that?",
			confidence*100,
		)}
	}

	switch intent {
	case IntentGreeting, IntentClarify:
		return Selection{}
	case IntentUnknown:
		return Selection{ErrorMessage: UnknownText}
	}

	op, ok := operationTable[intent]
	if !ok {
		s.logger.Error("No operation mapped for intent", zap.String("intent", string(intent)))
		return Selection{ErrorMessage: fmt.Sprintf(
			"I recognized your intent (%s) but don't know how to handle it yet.", intent,
		)}
	}

	if msg := validate(op, p); msg != "" {
		return Selection{ErrorMessage: msg}
	}

	s.logger.Info("Operation selected",
		zap.String("intent", string(intent)),
		zap.String("operation", string(op)),
	)
	return Selection{Operation: op}
}

// SelectResult is a convenience wrapper around Select for a classification result.
func (s *Selector) SelectResult(r Result) Selection {
	return s.Select(r.Intent, r.Confidence, r.Params)
}

func validate(op Operation, p Params) string {
	switch op {
	case OpAddTask:
		if p.Title == "" {
			return "I need a task title. What should I create?"
		}
		return checkTitle(p.Title)
	case OpCompleteTask, OpUpdateTask, OpDeleteTask:
		if !p.HasTaskReference() {
			return fmt.Sprintf("Which task should I %s? Please specify a task number or title.", operationVerbs[op])
		}
		if op != OpUpdateTask {
			return ""
		}
		if p.NewTitle == "" && p.NewDescription == "" {
			return "What should I update? Please specify the new title or description."
		}
		if p.NewTitle != "" {
			if msg := checkTitle(p.NewTitle); msg != "" {
				return msg
			}
		}
		if n := utf8.RuneCountInString(p.NewDescription); n > MaxDescriptionLength {
			return fmt.Sprintf("That description is too long (%d characters). Please keep it to %d characters or fewer.", n, MaxDescriptionLength)
		}
	}
	return ""
}

func checkTitle(title string) string {
	if n := utf8.RuneCountInString(title); n > MaxTitleLength {
		return fmt.Sprintf("That title is too long (%d characters). Please keep it to %d characters or fewer.", n, MaxTitleLength)
	}
	return ""
}
