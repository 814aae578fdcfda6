package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "objects"))
}

func TestBlobRoundtrip(t *testing.T) {
	st := newTestStore(t)

	data := []byte("hello, store")
	id, err := st.PutBlob(data)
	require.NoError(t, err)

	got, err := st.GetBlob(id)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestEmptyBlob(t *testing.T) {
	st := newTestStore(t)

	id, err := st.PutBlob(nil)
	require.NoError(t, err)

	got, err := st.GetBlob(id)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDeduplication(t *testing.T) {
	st := newTestStore(t)

	id1, err := st.PutBlob([]byte("X"))
	require.NoError(t, err)
	id2, err := st.PutBlob([]byte("X"))
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	shardDir := filepath.Join(st.Root(), id1.Shard())
	entries, err := os.ReadDir(shardDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, id1.Hex(), entries[0].Name())
}

func TestTypedRoundtrip(t *testing.T) {
	st := newTestStore(t)

	tree := model.NewTree([]model.TreeEntry{
		{Name: "main.go", Kind: model.EntryBlob},
	})
	id, err := st.PutTyped(tree)
	require.NoError(t, err)

	var decoded model.Tree
	require.NoError(t, st.GetTyped(id, &decoded))
	require.Equal(t, tree, decoded)
}

func TestKindMismatch(t *testing.T) {
	st := newTestStore(t)

	blobID, err := st.PutBlob([]byte("raw"))
	require.NoError(t, err)

	var tree model.Tree
	err = st.GetTyped(blobID, &tree)
	require.Error(t, err)
	require.True(t, ctxerr.IsKind(err, ctxerr.KindCorruptedObject), "got %v", err)
}

func TestGetMissing(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetBlob(objectIDFromByte(0x42))
	require.True(t, ctxerr.IsKind(err, ctxerr.KindObjectNotFound), "got %v", err)
}

func TestCorruptionDetected(t *testing.T) {
	st := newTestStore(t)

	id, err := st.PutBlob([]byte("hello"))
	require.NoError(t, err)

	// Overwrite the object file with garbage.
	path := filepath.Join(st.Root(), id.Shard(), id.Hex())
	require.NoError(t, os.WriteFile(path, []byte("not a valid object"), 0o644))

	_, err = st.GetBlob(id)
	require.Error(t, err)
	ok := ctxerr.IsKind(err, ctxerr.KindCorruptedObject) ||
		ctxerr.IsKind(err, ctxerr.KindHashMismatch) ||
		ctxerr.IsKind(err, ctxerr.KindCompression)
	require.True(t, ok, "unexpected error kind: %v", err)
}

func TestHashMismatchDetected(t *testing.T) {
	st := newTestStore(t)

	id1, err := st.PutBlob([]byte("content one"))
	require.NoError(t, err)
	id2, err := st.PutBlob([]byte("content two"))
	require.NoError(t, err)

	// Swap one object's file for the other's.
	path1 := filepath.Join(st.Root(), id1.Shard(), id1.Hex())
	path2 := filepath.Join(st.Root(), id2.Shard(), id2.Hex())
	data2, err := os.ReadFile(path2)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path1, data2, 0o644))

	_, err = st.GetBlob(id1)
	require.True(t, ctxerr.IsKind(err, ctxerr.KindHashMismatch), "got %v", err)
}

func TestBlobSizeLimit(t *testing.T) {
	st := newTestStore(t)

	// Exactly at the limit succeeds; one over fails. The content is
	// all-zero so compression keeps the test cheap on disk.
	atLimit := make([]byte, MaxBlobSize)
	_, err := st.PutBlob(atLimit)
	require.NoError(t, err)

	over := make([]byte, MaxBlobSize+1)
	_, err = st.PutBlob(over)
	require.True(t, ctxerr.IsKind(err, ctxerr.KindBlobTooLarge), "got %v", err)
}

func TestExists(t *testing.T) {
	st := newTestStore(t)

	id, err := st.PutBlob([]byte("here"))
	require.NoError(t, err)
	require.True(t, st.Exists(id))
	require.False(t, st.Exists(objectIDFromByte(0x99)))
}

func TestListAllSkipsTmpFiles(t *testing.T) {
	st := newTestStore(t)

	id, err := st.PutBlob([]byte("listed"))
	require.NoError(t, err)

	// Simulate a leftover temp file from a crashed write.
	tmpPath := filepath.Join(st.Root(), id.Shard(), "deadbeef.tmp")
	require.NoError(t, os.WriteFile(tmpPath, []byte("junk"), 0o644))

	entries, err := st.ListAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, id, entries[0].ID)
}

func TestListAllRejectsStrangers(t *testing.T) {
	st := newTestStore(t)

	_, err := st.PutBlob([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(st.Root(), "ab"), []byte("not a dir entry"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(st.Root(), "zz"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(st.Root(), "zz", "nothex"), []byte("?"), 0o644))

	_, err = st.ListAll()
	require.Error(t, err)
}

func TestDelete(t *testing.T) {
	st := newTestStore(t)

	id, err := st.PutBlob([]byte("doomed"))
	require.NoError(t, err)
	require.NoError(t, st.Delete(id))
	require.False(t, st.Exists(id))

	err = st.Delete(id)
	require.True(t, ctxerr.IsKind(err, ctxerr.KindObjectNotFound), "got %v", err)
}

func objectIDFromByte(b byte) objectid.ID {
	var raw [objectid.Len]byte
	for i := range raw {
		raw[i] = b
	}
	return objectid.FromBytes(raw)
}
