package agent

import (
	"fmt"
	"strconv"
)

const (
	GreetingText = "Hello! I'm your task assistant. How can I help you today?"
	RephraseText = "I'm not sure what you want me to do. Can you rephrase that?"
)

// ConfirmationText renders the user-facing sentence describing what the
// agent is about to do for the given classification.
func ConfirmationText(intent Intent, p Params) string {
	switch intent {
	case IntentCreateTask:
		title := p.Title
		if title == "" {
			title = "unnamed task"
		}
		return fmt.Sprintf("I'll create a task: '%s'. Should I go ahead?", title)

	case IntentListTasks:
		status := p.Status
		if status == "" {
			status = StatusAll
		}
		return fmt.Sprintf("I'll show you %s tasks.", status)

	case IntentCompleteTask:
		return fmt.Sprintf("I'll mark '%s' as complete. Should I go ahead?", describeTask(p))

	case IntentUpdateTask:
		if p.NewTitle != "" {
			return fmt.Sprintf("I'll update '%s' to '%s'. Should I go ahead?", describeTask(p), p.NewTitle)
		}
		return fmt.Sprintf("I'll update '%s'. What would you like to change?", describeTask(p))

	case IntentDeleteTask:
		return fmt.Sprintf("I'll delete '%s'. This cannot be undone. Should I proceed?", describeTask(p))

	case IntentGreeting:
		return GreetingText
	}

	return RephraseText
}

// describeTask picks the most human-readable task locator.
func describeTask(p Params) string {
	switch {
	case p.TaskIdentifier != "":
		return p.TaskIdentifier
	case p.TaskIndex != nil:
		return strconv.Itoa(*p.TaskIndex)
	case p.TaskID != "":
		return p.TaskID
	}
	return "the task"
}

// RequiresConfirmation reports whether the intent must be confirmed by the
// user before its operation runs.
func RequiresConfirmation(intent Intent) bool {
	return intent == IntentDeleteTask || intent == IntentCompleteTask
}
