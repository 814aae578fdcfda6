// Package classify implements the heuristic user-message classifier used for
// session orchestration. Classification is a pure function of the message
// and a small context snapshot; it never touches repository state.
package classify

import (
	"strings"

	"github.com/ctxgraph/ctx/internal/model"
)

// Classification is the category assigned to a user message.
type Classification int

const (
	// Response - direct answer to the agent's question ("Yes", "Option B").
	Response Classification = iota
	// Modification - change request for current work ("Make it 5 not 3").
	Modification
	// Confirmation - approval of completed work ("LGTM", "Ship it").
	Confirmation
	// Abandon - request to stop the current task ("Never mind", "Cancel").
	Abandon
	// NewTask - unrelated new request ("Now add pooling").
	NewTask
	// Clarification - request for information, no state change ("Why?").
	Clarification
)

func (c Classification) String() string {
	switch c {
	case Response:
		return "Response"
	case Modification:
		return "Modification"
	case Confirmation:
		return "Confirmation"
	case Abandon:
		return "Abandon"
	case NewTask:
		return "NewTask"
	case Clarification:
		return "Clarification"
	default:
		return "Unknown"
	}
}

// Context is the session snapshot classification runs against.
type Context struct {
	CurrentState    model.SessionState
	TaskDescription string
	// RecentQuestion is the agent's question when in AwaitingUser.
	RecentQuestion string
}

// Classify assigns a classification to a user message. The heuristics are
// ordered: abandon signals win, then state-aware rules, then clarification,
// and the fallback is Modification - the conservative choice.
func Classify(message string, ctx Context) Classification {
	lower := strings.ToLower(message)
	trimmed := strings.TrimSpace(message)

	if isAbandonment(lower) {
		return Abandon
	}

	switch ctx.CurrentState.Kind {
	case model.StateAwaitingUser:
		if isShortAffirmative(trimmed) {
			return Response
		}
		if trimmed != "" && len(trimmed) < 500 {
			if isNewTaskSignal(lower, ctx.TaskDescription) {
				return NewTask
			}
			return Response
		}

	case model.StatePendingComplete:
		if isConfirmation(lower) {
			return Confirmation
		}
		if requestsChanges(lower) {
			return Modification
		}
		if isShortAffirmative(trimmed) {
			return Confirmation
		}

	case model.StateRunning, model.StateInterrupted:
		if isNewTaskSignal(lower, ctx.TaskDescription) {
			return NewTask
		}

	case model.StateComplete, model.StateAborted:
		// Session is done; anything is effectively a new task.
		return NewTask
	}

	if isClarificationRequest(lower) {
		return Clarification
	}
	return Modification
}

var abandonPhrases = []string{
	"cancel", "stop", "never mind", "nevermind", "forget it", "forget about it",
	"don't bother", "abort", "quit", "drop it", "skip it", "let's not",
	"actually no", "actually, no",
}

func isAbandonment(lower string) bool {
	for _, phrase := range abandonPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	trimmed := strings.TrimSpace(lower)
	return trimmed == "no" || strings.HasPrefix(trimmed, "no,") || strings.HasPrefix(trimmed, "no.")
}

var affirmatives = []string{
	"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "k", "y",
	"correct", "right", "exactly", "that's right", "that's correct",
	"sounds good", "go ahead", "do it", "proceed", "continue",
}

func isShortAffirmative(message string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(message))
	if len(trimmed) > 50 {
		return false
	}
	for _, aff := range affirmatives {
		if trimmed == aff || strings.HasPrefix(trimmed, aff+",") {
			return true
		}
	}
	return false
}

var confirmationPhrases = []string{
	"looks good", "look good", "lgtm", "perfect", "great", "awesome",
	"ship it", "merge it", "done", "good to go", "approved", "approve",
	"accept", "nice", "excellent", "that works", "that's perfect",
	"that's great", "well done", "good job", "thanks", "thank you",
}

func isConfirmation(lower string) bool {
	for _, phrase := range confirmationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

var changeSignals = []string{
	"also", "but", "however", "instead", "change", "modify", "update",
	"fix", "add", "remove", "can you", "could you", "please", "actually",
	"wait", "one more", "another",
}

func requestsChanges(lower string) bool {
	for _, signal := range changeSignals {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	return false
}

var newTaskMarkers = []string{
	"new task", "different task", "something else", "unrelated",
	"change of topic", "switching gears", "now let's", "next task", "moving on",
}

// isNewTaskSignal looks for explicit markers, then falls back to a word
// overlap check: a substantial message sharing no significant words with the
// task description is probably a different task.
func isNewTaskSignal(lower, taskDescription string) bool {
	for _, marker := range newTaskMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	taskWords := significantWords(strings.ToLower(taskDescription))
	messageWords := significantWords(lower)
	if len(taskWords) < 3 || len(messageWords) < 5 || len(lower) <= 30 {
		return false
	}
	for w := range messageWords {
		if _, shared := taskWords[w]; shared {
			return false
		}
	}
	return true
}

func significantWords(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		if len(w) > 3 {
			words[w] = struct{}{}
		}
	}
	return words
}

var clarificationPatterns = []string{
	"what do you mean", "what does that mean", "can you explain",
	"could you explain", "show me", "where is", "how does", "what is", "why",
}

func isClarificationRequest(lower string) bool {
	for _, pattern := range clarificationPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	// A short question mark message is a clarification; a long one is
	// usually a task phrased as a question.
	return strings.Contains(lower, "?") && len(lower) < 100
}
