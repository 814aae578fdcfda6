package sessionflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ctxgraph/ctx/internal/classify"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/repo"
)

type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() int64 { return c.now }

func newHandler(t *testing.T) (*Handler, *repo.Repo, *fakeClock) {
	t.Helper()
	dir := t.TempDir()
	init, err := repo.Init(dir)
	require.NoError(t, err)
	require.NoError(t, init.Close())

	clock := &fakeClock{now: 0}
	r, err := repo.OpenWithClock(dir, clock.Now)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return NewHandler(r), r, clock
}

func TestNoSessionStartsNew(t *testing.T) {
	h, _, _ := newHandler(t)

	resp, err := h.HandleMessage("add retry logic to the fetcher")
	require.NoError(t, err)
	require.Equal(t, RespondStartNew, resp.Kind)
	require.Equal(t, "add retry logic to the fetcher", resp.UserMessage)
}

func TestFreshSessionProceedsWithClassification(t *testing.T) {
	h, r, _ := newHandler(t)
	_, err := r.StartSession("add retry logic to the fetcher")
	require.NoError(t, err)

	resp, err := h.HandleMessage("make the retry count 5 instead")
	require.NoError(t, err)
	require.Equal(t, RespondProceed, resp.Kind)
	require.Equal(t, classify.Modification, resp.Classification)
}

func TestStaleSessionPrompts(t *testing.T) {
	h, r, clock := newHandler(t)
	_, err := r.StartSession("old forgotten work")
	require.NoError(t, err)

	clock.now = r.Config().Session.AskThresholdSecs + 10
	resp, err := h.HandleMessage("do a different thing")
	require.NoError(t, err)
	require.Equal(t, RespondPrompt, resp.Kind)
	require.NotNil(t, resp.Pending)
	require.Equal(t, PendingStaleSession, resp.Pending.Kind)
	require.Equal(t, "old forgotten work", resp.Pending.OldTask)
}

func TestVeryStaleAutoCompacts(t *testing.T) {
	h, r, clock := newHandler(t)
	_, err := r.StartSession("ancient work")
	require.NoError(t, err)

	clock.now = r.Config().Session.AutoCompactThresholdSecs + 1
	resp, err := h.HandleMessage("new thing entirely")
	require.NoError(t, err)
	require.Equal(t, RespondAutoCompacted, resp.Kind)
	require.Equal(t, "ancient work", resp.OldTask)

	head, err := r.Head()
	require.NoError(t, err)
	require.NotNil(t, head.CommitType)
	require.Equal(t, model.CommitStaleAutoCompact, head.CommitType.Kind)
	require.False(t, r.HasActiveSession())
}

func TestNewTaskPromptAndSwitch(t *testing.T) {
	h, r, _ := newHandler(t)
	_, err := r.StartSession("implement websocket broadcast fanout")
	require.NoError(t, err)

	resp, err := h.HandleMessage("completely redesign billing invoices using streaming batches")
	require.NoError(t, err)
	require.Equal(t, RespondPrompt, resp.Kind)
	require.Equal(t, PendingNewTask, resp.Pending.Kind)

	final, err := h.HandlePendingResponse(ChoiceStartFresh, *resp.Pending)
	require.NoError(t, err)
	require.Equal(t, RespondStartNew, final.Kind)

	head, err := r.Head()
	require.NoError(t, err)
	require.NotNil(t, head.CommitType)
	require.Equal(t, model.CommitInterruptedByNewTask, head.CommitType.Kind)
}

func TestPendingContinue(t *testing.T) {
	h, r, _ := newHandler(t)
	_, err := r.StartSession("keep going")
	require.NoError(t, err)

	resp, err := h.HandlePendingResponse(ChoiceContinue, PendingAction{
		Kind:        PendingNewTask,
		UserMessage: "tweak it",
		OldTask:     "keep going",
	})
	require.NoError(t, err)
	require.Equal(t, RespondProceed, resp.Kind)
	require.Equal(t, classify.Modification, resp.Classification)
	require.True(t, r.HasActiveSession())
}
