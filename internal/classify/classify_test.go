package classify

import (
	"testing"

	"github.com/ctxgraph/ctx/internal/model"
)

func TestClassify(t *testing.T) {
	running := Context{CurrentState: model.Running(), TaskDescription: "add login handler to the auth service"}
	awaiting := Context{
		CurrentState:    model.SessionState{Kind: model.StateAwaitingUser, Question: "which backend?"},
		TaskDescription: "add login handler",
		RecentQuestion:  "which backend?",
	}
	pending := Context{
		CurrentState:    model.SessionState{Kind: model.StatePendingComplete, Summary: "done"},
		TaskDescription: "add login handler",
	}
	done := Context{CurrentState: model.SessionState{Kind: model.StateComplete}}

	tests := []struct {
		name    string
		message string
		ctx     Context
		want    Classification
	}{
		{"explicit cancel", "cancel that", running, Abandon},
		{"never mind", "never mind, it's fine as is", running, Abandon},
		{"bare no", "no", awaiting, Abandon},
		{"short yes while awaiting", "yes", awaiting, Response},
		{"substantive answer", "use the postgres backend", awaiting, Response},
		{"lgtm when pending", "lgtm, ship it", pending, Confirmation},
		{"changes requested when pending", "also add rate limiting please", pending, Modification},
		{"short ok when pending", "ok", pending, Confirmation},
		{"explicit new task marker", "new task: migrate the database to postgres", running, NewTask},
		{"unrelated substantial message", "refactor entire billing pipeline with streaming invoices", running, NewTask},
		{"related modification", "make the login handler return 403 instead", running, Modification},
		{"short question", "what does that mean?", running, Clarification},
		{"anything after complete", "tweak the colors", done, NewTask},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.message, tt.ctx); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.message, got, tt.want)
			}
		})
	}
}

func TestShortAffirmativeLengthCap(t *testing.T) {
	long := "yes, and while you're at it completely redesign the storage layer please"
	if isShortAffirmative(long) {
		t.Error("long message counted as short affirmative")
	}
	if !isShortAffirmative("sounds good") {
		t.Error("'sounds good' not recognized")
	}
}

func TestNewTaskOverlapHeuristic(t *testing.T) {
	// Shares "login" with the task, so not a new task despite its length.
	related := "extend the login handler with remember-me support and cookie rotation"
	if isNewTaskSignal(related, "add login handler to the auth service") {
		t.Error("related message misclassified as new task")
	}
}
