package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
	"github.com/ctxgraph/ctx/internal/store"
)

func testID(b byte) objectid.ID {
	var raw [objectid.Len]byte
	for i := range raw {
		raw[i] = b
	}
	return objectid.FromBytes(raw)
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Create(filepath.Join(t.TempDir(), "ctx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestOpenMissingReturnsNil(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "absent.db"))
	require.NoError(t, err)
	require.Nil(t, idx)
}

func TestCreateThenOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctx.db")
	idx, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	require.NotNil(t, reopened)
	require.NoError(t, reopened.Close())
}

func TestPathLookup(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.IndexFilePath("src/main.rs", testID(1)))

	got, found, err := idx.LookupPath("src/main.rs")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, testID(1), got)

	_, found, err = idx.LookupPath("src/other.rs")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSearchPathsBySubstring(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.IndexFilePaths(map[string]objectid.ID{
		"src/auth/login.rs":  testID(1),
		"src/auth/logout.rs": testID(2),
		"docs/AUTH.md":       testID(3),
		"src/db/pool.rs":     testID(4),
	}))

	matches, err := idx.SearchPathsBySubstring([]string{"auth"}, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"docs/AUTH.md", "src/auth/login.rs", "src/auth/logout.rs"}, matches)

	limited, err := idx.SearchPathsBySubstring([]string{"auth"}, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)

	multi, err := idx.SearchPathsBySubstring([]string{"pool", "login"}, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"src/auth/login.rs", "src/db/pool.rs"}, multi)
}

func edge(from, to model.NodeID, label model.EdgeLabel, commitID objectid.ID) model.Edge {
	return model.Edge{
		From:  from,
		To:    to,
		Label: label,
		Evidence: model.Evidence{
			CommitID:   commitID,
			Tool:       model.ToolParser,
			Confidence: model.ConfidenceHigh,
		},
	}
}

func TestAddCommitEdgesAdjacency(t *testing.T) {
	idx := newTestIndex(t)

	a := model.NodeID{Kind: model.NodeFile, ID: "a.rs"}
	b := model.NodeID{Kind: model.NodeFile, ID: "b.rs"}
	commitID := testID(9)

	commit := model.Commit{RootTree: testID(5), EdgeBatches: []objectid.ID{testID(6)}}
	batches := []model.EdgeBatch{{Edges: []model.Edge{edge(a, b, model.LabelImports, commitID)}}}

	require.NoError(t, idx.AddCommitEdges(commitID, commit, batches))

	out, err := idx.GetEdgesFrom(a, model.LabelImports)
	require.NoError(t, err)
	require.Equal(t, []model.NodeID{b}, out)

	in, err := idx.GetEdgesTo(b, model.LabelImports)
	require.NoError(t, err)
	require.Equal(t, []model.NodeID{a}, in)

	// Different label sees nothing.
	none, err := idx.GetEdgesFrom(a, model.LabelCalls)
	require.NoError(t, err)
	require.Empty(t, none)

	info, found, err := idx.GetCommitInfo(commitID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, testID(5), info.RootTree)
	require.Equal(t, []objectid.ID{testID(6)}, info.EdgeBatches)
}

func TestAddCommitEdgesIdempotent(t *testing.T) {
	idx := newTestIndex(t)

	a := model.NodeID{Kind: model.NodeFile, ID: "a.rs"}
	b := model.NodeID{Kind: model.NodeFile, ID: "b.rs"}
	batches := []model.EdgeBatch{{Edges: []model.Edge{edge(a, b, model.LabelImports, testID(1))}}}

	require.NoError(t, idx.AddCommitEdges(testID(1), model.Commit{}, batches))
	require.NoError(t, idx.AddCommitEdges(testID(1), model.Commit{}, batches))

	out, err := idx.GetEdgesFrom(a, model.LabelImports)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestNameIndexing(t *testing.T) {
	idx := newTestIndex(t)

	item := model.NodeID{Kind: model.NodeItem, ID: "auth::session::login"}
	file := model.NodeID{Kind: model.NodeFile, ID: "src/auth.rs"}
	commitID := testID(3)

	batches := []model.EdgeBatch{{Edges: []model.Edge{edge(file, item, model.LabelDefines, commitID)}}}
	require.NoError(t, idx.AddCommitEdges(commitID, model.Commit{}, batches))

	// Qualified ids index under their last :: segment; evidence falls back
	// to the commit id when no blob id is present.
	ids, err := idx.LookupName(NsItem, "login")
	require.NoError(t, err)
	require.Equal(t, []objectid.ID{commitID}, ids)

	// Files have no name namespace.
	ids, err = idx.LookupName(NsItem, "auth.rs")
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestRebuildFromObjects(t *testing.T) {
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "objects"))
	path := filepath.Join(dir, "ctx.db")

	// Build a small history: initial commit, then one with a tree and edges.
	blobA, err := st.PutBlob([]byte("fn a() {}"))
	require.NoError(t, err)
	srcTree, err := st.PutTyped(model.NewTree([]model.TreeEntry{
		{Name: "a.rs", Kind: model.EntryBlob, ID: blobA},
	}))
	require.NoError(t, err)
	rootTree, err := st.PutTyped(model.NewTree([]model.TreeEntry{
		{Name: "src", Kind: model.EntryTree, ID: srcTree},
	}))
	require.NoError(t, err)

	initial, err := st.PutTyped(model.Commit{Message: "Initial commit", Timestamp: 1, RootTree: rootTree})
	require.NoError(t, err)

	a := model.NodeID{Kind: model.NodeFile, ID: "src/a.rs"}
	b := model.NodeID{Kind: model.NodeFile, ID: "src/b.rs"}
	batchID, err := st.PutTyped(model.EdgeBatch{
		Edges:     []model.Edge{edge(a, b, model.LabelImports, initial)},
		CreatedAt: 2,
	})
	require.NoError(t, err)

	head, err := st.PutTyped(model.Commit{
		Parents: []objectid.ID{initial}, Message: "with edges", Timestamp: 2,
		RootTree: rootTree, EdgeBatches: []objectid.ID{batchID},
	})
	require.NoError(t, err)

	// Seed an index with an externally populated path that must survive.
	prev, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, prev.IndexFilePath("external/analyzer.rs", testID(0xee)))

	idx, report, err := Rebuild(prev, path, head, st, RebuildConfig{})
	require.NoError(t, err)
	defer idx.Close()

	require.Equal(t, 2, report.CommitsIndexed)
	require.Equal(t, 1, report.EdgesIndexed)
	require.Empty(t, report.Skipped)

	// Preserved external path.
	got, found, err := idx.LookupPath("external/analyzer.rs")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, testID(0xee), got)

	// HEAD tree paths for both blobs and trees.
	got, found, err = idx.LookupPath("src/a.rs")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, blobA, got)

	_, found, err = idx.LookupPath("src")
	require.NoError(t, err)
	require.True(t, found)

	// Adjacency restored.
	out, err := idx.GetEdgesFrom(a, model.LabelImports)
	require.NoError(t, err)
	require.Equal(t, []model.NodeID{b}, out)
}

func TestRebuildSkipCorrupted(t *testing.T) {
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "objects"))
	path := filepath.Join(dir, "ctx.db")

	rootTree, err := st.PutTyped(model.NewTree(nil))
	require.NoError(t, err)
	head, err := st.PutTyped(model.Commit{
		Message: "head", Timestamp: 1, RootTree: rootTree,
		EdgeBatches: []objectid.ID{testID(0x55)}, // missing batch
	})
	require.NoError(t, err)

	_, _, err = Rebuild(nil, path, head, st, RebuildConfig{})
	require.Error(t, err)

	idx, report, err := Rebuild(nil, path, head, st, RebuildConfig{SkipCorrupted: true})
	require.NoError(t, err)
	defer idx.Close()
	require.Len(t, report.Skipped, 1)
	require.Equal(t, 1, report.CommitsIndexed)
}

func TestVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctx.db")
	idx, err := Create(path)
	require.NoError(t, err)

	// Force a wrong version.
	require.NoError(t, idx.update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put(keyVersion, []byte{9, 0, 0, 0})
	}))
	require.NoError(t, idx.Close())

	_, err = Open(path)
	require.True(t, ctxerr.IsKind(err, ctxerr.KindIndexCorrupted), "got %v", err)
}
