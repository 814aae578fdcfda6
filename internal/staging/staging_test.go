package staging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
	"github.com/ctxgraph/ctx/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(filepath.Join(t.TempDir(), "objects"))
}

func write(path string, id objectid.ID) model.Observation {
	return model.Observation{Kind: model.ObsFileWrite, Path: path, ContentID: &id}
}

func blobID(t *testing.T, st *store.Store, content string) objectid.ID {
	t.Helper()
	id, err := st.PutBlob([]byte(content))
	require.NoError(t, err)
	return id
}

// resolve walks a tree to a path, returning the entry's id.
func resolve(t *testing.T, st *store.Store, treeID objectid.ID, path string) (objectid.ID, bool) {
	t.Helper()
	var tree model.Tree
	require.NoError(t, st.GetTyped(treeID, &tree))

	for {
		slash := -1
		for i, c := range path {
			if c == '/' {
				slash = i
				break
			}
		}
		name := path
		if slash >= 0 {
			name = path[:slash]
		}

		var found *model.TreeEntry
		for i := range tree.Entries {
			if tree.Entries[i].Name == name {
				found = &tree.Entries[i]
				break
			}
		}
		if found == nil {
			return objectid.ID{}, false
		}
		if slash < 0 {
			return found.ID, true
		}
		path = path[slash+1:]
		require.Equal(t, model.EntryTree, found.Kind)
		require.NoError(t, st.GetTyped(found.ID, &tree))
	}
}

func TestBuildTreeNestedPaths(t *testing.T) {
	st := newTestStore(t)
	a := blobID(t, st, "a")
	b := blobID(t, st, "b")
	c := blobID(t, st, "c")

	obs := []model.Observation{
		write("src/lib.rs", a),
		write("src/deep/inner.rs", b),
		write("README.md", c),
	}

	rootID, err := BuildTreeFromObservations(obs, objectid.ID{}, st)
	require.NoError(t, err)

	got, ok := resolve(t, st, rootID, "src/lib.rs")
	require.True(t, ok)
	require.Equal(t, a, got)

	got, ok = resolve(t, st, rootID, "src/deep/inner.rs")
	require.True(t, ok)
	require.Equal(t, b, got)

	got, ok = resolve(t, st, rootID, "README.md")
	require.True(t, ok)
	require.Equal(t, c, got)
}

func TestBuildTreeLastWriteWins(t *testing.T) {
	st := newTestStore(t)
	first := blobID(t, st, "first")
	second := blobID(t, st, "second")

	obs := []model.Observation{
		write("file.txt", first),
		write("file.txt", second),
	}
	rootID, err := BuildTreeFromObservations(obs, objectid.ID{}, st)
	require.NoError(t, err)

	got, ok := resolve(t, st, rootID, "file.txt")
	require.True(t, ok)
	require.Equal(t, second, got)
}

func TestBuildTreeNoWritesKeepsBase(t *testing.T) {
	st := newTestStore(t)
	base := blobID(t, st, "pretend this is a tree id")

	obs := []model.Observation{
		{Kind: model.ObsFileRead, Path: "a.rs"},
		{Kind: model.ObsNote, Content: "n"},
	}
	rootID, err := BuildTreeFromObservations(obs, base, st)
	require.NoError(t, err)
	require.Equal(t, base, rootID)
}

func TestExtractEdgesSelfLoops(t *testing.T) {
	st := newTestStore(t)
	a := blobID(t, st, "a")

	base := blobID(t, st, "base commit stand-in")
	obs := []model.Observation{
		write("z.rs", a),
		write("a.rs", a),
		write("z.rs", a), // duplicate path collapses
	}

	batchIDs, err := ExtractEdges(obs, base, 42, st)
	require.NoError(t, err)
	require.Len(t, batchIDs, 1)

	var batch model.EdgeBatch
	require.NoError(t, st.GetTyped(batchIDs[0], &batch))
	require.Equal(t, int64(42), batch.CreatedAt)
	require.Len(t, batch.Edges, 2)

	// Sorted by path; each edge is an UpdatedIn self-loop with Human/High
	// evidence at the base commit.
	require.Equal(t, "a.rs", batch.Edges[0].From.ID)
	require.Equal(t, "z.rs", batch.Edges[1].From.ID)
	for _, e := range batch.Edges {
		require.Equal(t, e.From, e.To)
		require.Equal(t, model.LabelUpdatedIn, e.Label)
		require.Equal(t, model.ToolHuman, e.Evidence.Tool)
		require.Equal(t, model.ConfidenceHigh, e.Evidence.Confidence)
		require.Equal(t, base, e.Evidence.CommitID)
	}
}

func TestExtractEdgesNoWrites(t *testing.T) {
	st := newTestStore(t)
	batchIDs, err := ExtractEdges([]model.Observation{
		{Kind: model.ObsNote, Content: "nothing written"},
	}, objectid.ID{}, 1, st)
	require.NoError(t, err)
	require.Empty(t, batchIDs)
}

func TestWalkChainOrderAndCorruption(t *testing.T) {
	st := newTestStore(t)

	base, err := st.PutTyped(model.Commit{Message: "base", Timestamp: 1})
	require.NoError(t, err)

	payload1, err := model.EncodeObservations([]model.Observation{{Kind: model.ObsNote, Content: "one"}})
	require.NoError(t, err)
	step1, err := st.PutTyped(model.WorkCommit{
		Parents: []objectid.ID{base}, Base: base, SessionID: "s",
		StepKind: model.StepNote, Payload: payload1, SessionState: model.Running(),
	})
	require.NoError(t, err)

	payload2, err := model.EncodeObservations([]model.Observation{{Kind: model.ObsNote, Content: "two"}})
	require.NoError(t, err)
	step2, err := st.PutTyped(model.WorkCommit{
		Parents: []objectid.ID{step1}, Base: base, SessionID: "s",
		StepKind: model.StepNote, Payload: payload2, SessionState: model.Running(),
	})
	require.NoError(t, err)

	chain, err := WalkChain(step2, base, st)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, step1, chain[0].ID)
	require.Equal(t, step2, chain[1].ID)

	obs, err := CollectObservations(chain)
	require.NoError(t, err)
	require.Equal(t, "one", obs[0].Content)
	require.Equal(t, "two", obs[1].Content)

	// A chain whose tip is missing from the store is corrupted.
	var missing objectid.ID
	missing[0] = 0x77
	_, err = WalkChain(missing, base, st)
	require.True(t, ctxerr.IsKind(err, ctxerr.KindStagingCorrupted), "got %v", err)
}

func TestCompactInheritsSnapshots(t *testing.T) {
	st := newTestStore(t)

	snap := blobID(t, st, "cargo snapshot")
	emptyTree, err := st.PutTyped(model.NewTree(nil))
	require.NoError(t, err)
	base, err := st.PutTyped(model.Commit{
		Message: "base", Timestamp: 1, RootTree: emptyTree, CargoSnapshot: &snap,
	})
	require.NoError(t, err)

	content := blobID(t, st, "content")
	payload, err := model.EncodeObservations([]model.Observation{write("src/x.rs", content)})
	require.NoError(t, err)
	step, err := st.PutTyped(model.WorkCommit{
		Parents: []objectid.ID{base}, Base: base, SessionID: "s",
		StepKind: model.StepFileWrite, Payload: payload, SessionState: model.Running(),
	})
	require.NoError(t, err)

	commit, err := Compact(step, base, "done", model.NormalCommit(), 100, st)
	require.NoError(t, err)

	require.Equal(t, []objectid.ID{base}, commit.Parents)
	require.Equal(t, "done", commit.Message)
	require.Equal(t, int64(100), commit.Timestamp)
	require.NotNil(t, commit.CargoSnapshot)
	require.Equal(t, snap, *commit.CargoSnapshot)
	require.NotNil(t, commit.CommitType)
	require.Equal(t, model.CommitNormal, commit.CommitType.Kind)
	require.Len(t, commit.EdgeBatches, 1)

	got, ok := resolve(t, st, commit.RootTree, "src/x.rs")
	require.True(t, ok)
	require.Equal(t, content, got)
}
