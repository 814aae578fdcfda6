// Package sessionflow coordinates message classification with stale-session
// detection, telling an agent orchestrator what to do with each incoming
// user message.
package sessionflow

import (
	"fmt"
	"time"

	"github.com/ctxgraph/ctx/internal/classify"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/repo"
	"github.com/ctxgraph/ctx/internal/session"
)

// ResponseKind discriminates handler outcomes.
type ResponseKind int

const (
	// RespondProceed - handle the message per its classification.
	RespondProceed ResponseKind = iota
	// RespondPrompt - present Prompt to the user and wait for a choice.
	RespondPrompt
	// RespondAutoCompacted - the stale session was compacted; proceed with
	// the message as a fresh task.
	RespondAutoCompacted
	// RespondStartNew - no session exists; the message is a new task.
	RespondStartNew
)

// Response tells the orchestrator what to do next.
type Response struct {
	Kind           ResponseKind
	Classification classify.Classification
	// Prompt is the user-facing question for RespondPrompt.
	Prompt string
	// Pending is the decision awaiting the user for RespondPrompt.
	Pending *PendingAction
	// OldTask is the compacted task for RespondAutoCompacted.
	OldTask string
	// UserMessage echoes the triggering message.
	UserMessage string
}

// PendingKind discriminates pending decisions.
type PendingKind int

const (
	// PendingStaleSession - continue old work or start fresh.
	PendingStaleSession PendingKind = iota
	// PendingNewTask - save current work and switch, or continue current.
	PendingNewTask
)

// PendingAction is a queued decision awaiting user input.
type PendingAction struct {
	Kind        PendingKind
	UserMessage string
	OldTask     string
	NewTask     string
	IdleSecs    int64
}

// Choice is the user's answer to a pending action.
type Choice int

const (
	// ChoiceContinue keeps the current/old session.
	ChoiceContinue Choice = iota
	// ChoiceStartFresh compacts the old session and starts anew.
	ChoiceStartFresh
)

// Handler drives the intelligence layer over a repository.
type Handler struct {
	repo *repo.Repo
}

// NewHandler wraps a repository.
func NewHandler(r *repo.Repo) *Handler {
	return &Handler{repo: r}
}

// HandleMessage processes an incoming user message: staleness first, then
// classification against the fresh session.
func (h *Handler) HandleMessage(message string) (Response, error) {
	switch h.repo.CheckStale() {
	case session.StaleNoSession:
		return Response{Kind: RespondStartNew, UserMessage: message}, nil

	case session.StaleShouldAutoCompact:
		s := h.repo.ActiveSession()
		task := s.TaskDescription()
		idle := s.IdleSecs()
		ct := model.CommitType{Kind: model.CommitStaleAutoCompact, IdleSecs: uint64(idle)}
		if _, err := h.repo.CompactSessionWithType("Auto-compacted stale session: "+task, ct); err != nil {
			return Response{}, err
		}
		return Response{Kind: RespondAutoCompacted, OldTask: task, UserMessage: message}, nil

	case session.StaleShouldAsk:
		s := h.repo.ActiveSession()
		task := s.TaskDescription()
		idle := s.IdleSecs()
		return Response{
			Kind: RespondPrompt,
			Prompt: fmt.Sprintf(
				"You have an unfinished task from %s ago: %q. Continue it or start fresh?",
				formatIdle(idle), task),
			Pending: &PendingAction{
				Kind:        PendingStaleSession,
				UserMessage: message,
				OldTask:     task,
				IdleSecs:    idle,
			},
			UserMessage: message,
		}, nil
	}

	return h.handleFresh(message)
}

func (h *Handler) handleFresh(message string) (Response, error) {
	s := h.repo.ActiveSession()
	state := model.Running()
	task := ""
	if s != nil {
		state = s.State()
		task = s.TaskDescription()
	}

	ctx := classify.Context{
		CurrentState:    state,
		TaskDescription: task,
	}
	if state.Kind == model.StateAwaitingUser {
		ctx.RecentQuestion = state.Question
	}

	classification := classify.Classify(message, ctx)
	if classification == classify.NewTask {
		return Response{
			Kind: RespondPrompt,
			Prompt: fmt.Sprintf(
				"You're currently working on: %q. This looks like a new task. Save current work and switch?",
				task),
			Pending: &PendingAction{
				Kind:        PendingNewTask,
				UserMessage: message,
				OldTask:     task,
				NewTask:     message,
			},
			UserMessage: message,
		}, nil
	}
	return Response{Kind: RespondProceed, Classification: classification, UserMessage: message}, nil
}

// HandlePendingResponse resolves a queued decision after the user chooses.
func (h *Handler) HandlePendingResponse(choice Choice, pending PendingAction) (Response, error) {
	switch {
	case choice == ChoiceContinue:
		// Continuing means the message adjusts current work.
		return Response{Kind: RespondProceed, Classification: classify.Modification,
			UserMessage: pending.UserMessage}, nil

	case pending.Kind == PendingStaleSession:
		msg := fmt.Sprintf("Saved: %s (user started new task)", pending.OldTask)
		if _, err := h.repo.CompactSession(msg); err != nil {
			return Response{}, err
		}
		return Response{Kind: RespondStartNew, UserMessage: pending.UserMessage}, nil

	default: // StartFresh on a new-task choice
		ct := model.CommitType{Kind: model.CommitInterruptedByNewTask, NewTaskSummary: pending.NewTask}
		msg := fmt.Sprintf("Saved: %s (switched to new task)", pending.OldTask)
		if _, err := h.repo.CompactSessionWithType(msg, ct); err != nil {
			return Response{}, err
		}
		return Response{Kind: RespondStartNew, UserMessage: pending.NewTask}, nil
	}
}

func formatIdle(secs int64) string {
	d := time.Duration(secs) * time.Second
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours())/24)
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
}
