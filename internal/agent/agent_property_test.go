package agent

import (
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

// TestPropertyClassifyIsDeterministic verifies that classifying the same
// input twice yields identical results.
func TestPropertyClassifyIsDeterministic(t *testing.T) {
	c := NewClassifier(nil)
	rapid.Check(t, func(rt *rapid.T) {
		msg := rapid.String().Draw(rt, "message")

		first := c.Classify(msg)
		second := c.Classify(msg)

		if !reflect.DeepEqual(first, second) {
			rt.Fatalf("Classify(%q) not stable: %+v vs %+v", msg, first, second)
		}
	})
}

// TestPropertyGreetingShortCircuits verifies that any message opening with a
// greeting word is a greeting with fixed confidence and no parameters.
func TestPropertyGreetingShortCircuits(t *testing.T) {
	c := NewClassifier(nil)
	rapid.Check(t, func(rt *rapid.T) {
		word := rapid.SampledFrom([]string{"hi", "Hello", "HEY", "greetings"}).Draw(rt, "greeting")
		rest := rapid.StringMatching(`( [a-z#0-9']{1,10}){0,5}`).Draw(rt, "rest")

		got := c.Classify(word + rest)
		if got.Intent != IntentGreeting {
			rt.Fatalf("Classify(%q) = %s, want greeting", word+rest, got.Intent)
		}
		if got.Confidence != 0.95 {
			rt.Fatalf("confidence = %v, want 0.95", got.Confidence)
		}
		if !got.Params.IsEmpty() {
			rt.Fatalf("params = %+v, want empty", got.Params)
		}
	})
}

// TestPropertyDigitsAreUnknown verifies that bare numbers never match an intent.
func TestPropertyDigitsAreUnknown(t *testing.T) {
	c := NewClassifier(nil)
	rapid.Check(t, func(rt *rapid.T) {
		msg := rapid.StringMatching(`[0-9]{1,12}`).Draw(rt, "digits")

		got := c.Classify(msg)
		if got.Intent != IntentUnknown || got.Confidence != 0.3 || !got.Params.IsEmpty() {
			rt.Fatalf("Classify(%q) = %+v, want unknown/0.3/empty", msg, got)
		}
	})
}

// TestPropertyUnknownIsBelowThreshold verifies that an unknown result is
// always refused by the selector.
func TestPropertyUnknownIsBelowThreshold(t *testing.T) {
	c := NewClassifier(nil)
	s := NewSelector(nil)
	rapid.Check(t, func(rt *rapid.T) {
		msg := rapid.String().Draw(rt, "message")

		got := c.Classify(msg)
		if got.Intent != IntentUnknown {
			return
		}
		if got.Confidence >= ConfidenceThreshold {
			rt.Fatalf("unknown confidence %v not below threshold", got.Confidence)
		}
		sel := s.SelectResult(got)
		if sel.Operation != "" || sel.ErrorMessage == "" {
			rt.Fatalf("unknown selection = %+v", sel)
		}
	})
}

// TestPropertyLowConfidenceNeverSelects verifies the confidence gate holds
// for every intent and parameter set.
func TestPropertyLowConfidenceNeverSelects(t *testing.T) {
	s := NewSelector(nil)
	rapid.Check(t, func(rt *rapid.T) {
		intent := rapid.SampledFrom(AllIntents).Draw(rt, "intent")
		confidence := rapid.Float64Range(0, 0.599).Draw(rt, "confidence")
		p := Params{
			Title:          rapid.StringMatching(`[a-z ]{0,10}`).Draw(rt, "title"),
			TaskIdentifier: rapid.StringMatching(`[a-z]{0,5}`).Draw(rt, "ident"),
			NewTitle:       rapid.StringMatching(`[a-z]{0,5}`).Draw(rt, "new_title"),
		}

		sel := s.Select(intent, confidence, p)
		if sel.Operation != "" {
			rt.Fatalf("Select(%s, %v) chose %s", intent, confidence, sel.Operation)
		}
		if sel.ErrorMessage == "" {
			rt.Fatalf("Select(%s, %v) returned no message", intent, confidence)
		}
	})
}

// TestPropertyTaskIndexIsFirstNumber verifies that the first number in the
// message becomes the task index.
func TestPropertyTaskIndexIsFirstNumber(t *testing.T) {
	c := NewClassifier(nil)
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 1_000_000).Draw(rt, "n")
		prefix := rapid.SampledFrom([]string{"#", "", "-"}).Draw(rt, "prefix")
		msg := fmt.Sprintf("mark task %s%d as done", prefix, n)

		got := c.Classify(msg)
		if got.Intent != IntentCompleteTask {
			rt.Fatalf("Classify(%q) = %s", msg, got.Intent)
		}
		if got.Params.TaskIndex == nil || *got.Params.TaskIndex != n {
			rt.Fatalf("Classify(%q) index = %v, want %d", msg, got.Params.TaskIndex, n)
		}
	})
}

// TestPropertySelectionIsExclusive verifies that a selection never carries
// both an operation and an error message.
func TestPropertySelectionIsExclusive(t *testing.T) {
	c := NewClassifier(nil)
	s := NewSelector(nil)
	rapid.Check(t, func(rt *rapid.T) {
		verb := rapid.SampledFrom([]string{"add task", "delete task", "mark task", "update task", "show my", "hello", ""}).Draw(rt, "verb")
		tail := rapid.StringMatching(`( [a-z#0-9']{1,8}){0,4}`).Draw(rt, "tail")

		sel := s.SelectResult(c.Classify(verb + tail))
		if sel.Operation != "" && sel.ErrorMessage != "" {
			rt.Fatalf("selection for %q has both fields: %+v", verb+tail, sel)
		}
	})
}
