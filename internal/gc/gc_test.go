package gc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
	"github.com/ctxgraph/ctx/internal/refs"
	"github.com/ctxgraph/ctx/internal/store"
)

func testEnv(t *testing.T) (*refs.Refs, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	return refs.New(dir), store.New(filepath.Join(dir, "objects"))
}

// seedCommit stores a blob, a tree holding it, and a commit rooted there,
// pointing HEAD at the commit. Returns ids for assertions.
func seedCommit(t *testing.T, r *refs.Refs, st *store.Store) (commitID, treeID, blobID objectid.ID) {
	t.Helper()
	var err error
	blobID, err = st.PutBlob([]byte("reachable content"))
	require.NoError(t, err)

	treeID, err = st.PutTyped(model.NewTree([]model.TreeEntry{
		{Name: "keep.rs", Kind: model.EntryBlob, ID: blobID},
	}))
	require.NoError(t, err)

	commitID, err = st.PutTyped(model.Commit{Message: "keep", Timestamp: 1, RootTree: treeID})
	require.NoError(t, err)
	require.NoError(t, r.WriteHead(commitID))
	return commitID, treeID, blobID
}

func TestGcKeepsReachable(t *testing.T) {
	r, st := testEnv(t)
	commitID, treeID, blobID := seedCommit(t, r, st)

	report, err := Run(r, st, Config{Aggressive: true})
	require.NoError(t, err)

	require.Equal(t, 0, report.ObjectsDeleted)
	require.True(t, st.Exists(commitID))
	require.True(t, st.Exists(treeID))
	require.True(t, st.Exists(blobID))
}

func TestGcSweepsUnreachable(t *testing.T) {
	r, st := testEnv(t)
	seedCommit(t, r, st)

	orphan, err := st.PutBlob([]byte("orphaned bytes"))
	require.NoError(t, err)

	report, err := Run(r, st, Config{Aggressive: true})
	require.NoError(t, err)

	require.Equal(t, 1, report.ObjectsDeleted)
	require.Positive(t, report.BytesFreed)
	require.False(t, st.Exists(orphan))
}

func TestGcGracePeriodProtectsRecent(t *testing.T) {
	r, st := testEnv(t)
	seedCommit(t, r, st)

	orphan, err := st.PutBlob([]byte("young orphan"))
	require.NoError(t, err)

	// Default grace period: a freshly written orphan survives.
	report, err := Run(r, st, Config{GracePeriodDays: 7})
	require.NoError(t, err)
	require.Equal(t, 0, report.ObjectsDeleted)
	require.True(t, st.Exists(orphan))
}

func TestGcDryRun(t *testing.T) {
	r, st := testEnv(t)
	seedCommit(t, r, st)

	orphan, err := st.PutBlob([]byte("counted, not deleted"))
	require.NoError(t, err)

	report, err := Run(r, st, Config{Aggressive: true, DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 1, report.ObjectsDeleted)
	require.True(t, st.Exists(orphan))
}

func TestGcProtectsStagingChain(t *testing.T) {
	r, st := testEnv(t)
	commitID, _, _ := seedCommit(t, r, st)

	content, err := st.PutBlob([]byte("written in session"))
	require.NoError(t, err)
	payload, err := model.EncodeObservations([]model.Observation{
		{Kind: model.ObsFileWrite, Path: "w.rs", ContentID: &content},
	})
	require.NoError(t, err)

	step1, err := st.PutTyped(model.WorkCommit{
		Parents: []objectid.ID{commitID}, Base: commitID, SessionID: "s",
		StepKind: model.StepFileWrite, Payload: payload, SessionState: model.Running(),
	})
	require.NoError(t, err)
	step2, err := st.PutTyped(model.WorkCommit{
		Parents: []objectid.ID{step1}, Base: commitID, SessionID: "s",
		StepKind: model.StepNote, Payload: nil, SessionState: model.Running(),
	})
	require.NoError(t, err)
	require.NoError(t, r.WriteStage(step2))

	report, err := Run(r, st, Config{Aggressive: true})
	require.NoError(t, err)
	require.Equal(t, 0, report.ObjectsDeleted)
	require.True(t, st.Exists(step1))
	require.True(t, st.Exists(content))
}

func TestGcRefsAreRoots(t *testing.T) {
	r, st := testEnv(t)
	seedCommit(t, r, st)

	// A commit reachable only through refs/archive must survive.
	tree, err := st.PutTyped(model.NewTree(nil))
	require.NoError(t, err)
	archived, err := st.PutTyped(model.Commit{Message: "archived", Timestamp: 2, RootTree: tree})
	require.NoError(t, err)
	require.NoError(t, r.WriteRef("archive/old", archived))

	report, err := Run(r, st, Config{Aggressive: true})
	require.NoError(t, err)
	require.Equal(t, 0, report.ObjectsDeleted)
	require.True(t, st.Exists(archived))
	require.True(t, st.Exists(tree))
}
