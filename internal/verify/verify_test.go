package verify

import (
	"os"
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

func seedRepo(t *testing.T, r *refs.Refs, st *store.Store) objectid.ID {
	t.Helper()
	tree, err := st.PutTyped(model.NewTree(nil))
	require.NoError(t, err)
	commit, err := st.PutTyped(model.Commit{Message: "ok", Timestamp: 1, RootTree: tree})
	require.NoError(t, err)
	require.NoError(t, r.WriteHead(commit))
	require.NoError(t, r.WriteRef("main", commit))
	return commit
}

func TestCleanRepoHasNoIssues(t *testing.T) {
	r, st := testEnv(t)
	seedRepo(t, r, st)

	report, err := Run(r, st, Config{CheckRefs: true, CheckCommits: true, CheckObjects: true})
	require.NoError(t, err)
	require.False(t, report.HasIssues())
	require.Equal(t, 2, report.RefsChecked)
	require.Equal(t, 1, report.CommitsChecked)
	require.Equal(t, 2, report.ObjectsChecked)
}

func TestDanglingRefDetected(t *testing.T) {
	r, st := testEnv(t)
	seedRepo(t, r, st)

	var missing objectid.ID
	missing[0] = 0x66
	require.NoError(t, r.WriteRef("broken", missing))

	report, err := Run(r, st, DefaultConfig())
	require.NoError(t, err)
	require.True(t, report.HasIssues())
	require.Len(t, report.DanglingRefs, 1)
}

func TestMissingTreeDetected(t *testing.T) {
	r, st := testEnv(t)

	var missingTree objectid.ID
	missingTree[0] = 0x42
	commit, err := st.PutTyped(model.Commit{Message: "broken", Timestamp: 1, RootTree: missingTree})
	require.NoError(t, err)
	require.NoError(t, r.WriteHead(commit))

	report, err := Run(r, st, DefaultConfig())
	require.NoError(t, err)
	require.True(t, report.HasIssues())
	require.NotEmpty(t, report.InvalidCommits)
}

func TestCorruptObjectDetected(t *testing.T) {
	r, st := testEnv(t)
	seedRepo(t, r, st)

	blobID, err := st.PutBlob([]byte("about to break"))
	require.NoError(t, err)
	path := filepath.Join(st.Root(), blobID.Shard(), blobID.Hex())
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	report, err := Run(r, st, Config{CheckObjects: true})
	require.NoError(t, err)
	require.True(t, report.HasIssues())
	require.Len(t, report.CorruptedObjects, 1)
}

func TestSummary(t *testing.T) {
	r, st := testEnv(t)
	seedRepo(t, r, st)

	report, err := Run(r, st, DefaultConfig())
	require.NoError(t, err)
	require.Contains(t, report.Summary(), "no issues found")
}
