// Package index maintains the derived key-value index over objects: path
// lookups, name lookups, graph adjacency, and cached commit metadata. The
// database is fully derivable from objects plus refs; deleting it is always
// safe.
package index

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
)

// SchemaVersion is the current index layout version. Opening a database with
// a different version fails with IndexCorrupted.
const SchemaVersion = 1

var (
	bucketPathToID   = []byte("path_to_id")
	bucketNameToIDs  = []byte("name_to_ids")
	bucketCommitInfo = []byte("commit_info")
	bucketAdjacency  = []byte("adjacency")
	bucketMetadata   = []byte("metadata")

	keyVersion = []byte("version")
)

// Direction selects a side of the adjacency table.
type Direction byte

const (
	// Outgoing edges: from -> to.
	Outgoing Direction = 1
	// Incoming edges: to -> from.
	Incoming Direction = 2
)

// Namespace partitions the name table by node kind.
type Namespace byte

const (
	NsPackage Namespace = 1
	NsModule  Namespace = 2
	NsItem    Namespace = 3
	NsTask    Namespace = 4
	NsNote    Namespace = 5
)

// NamespaceFor maps a node kind to its name namespace. The second return is
// false for kinds that are not name-indexed.
func NamespaceFor(kind model.NodeKind) (Namespace, bool) {
	switch kind {
	case model.NodePackage:
		return NsPackage, true
	case model.NodeModule:
		return NsModule, true
	case model.NodeItem:
		return NsItem, true
	case model.NodeTask:
		return NsTask, true
	case model.NodeNote:
		return NsNote, true
	default:
		return 0, false
	}
}

// CommitInfo is the cached per-commit metadata.
type CommitInfo struct {
	RootTree            objectid.ID
	EdgeBatches         []objectid.ID
	NarrativeRefs       []string
	CargoSnapshot       *objectid.ID
	RustSnapshot        *objectid.ID
	DiagnosticsSnapshot *objectid.ID
}

// InfoFromCommit projects a Commit onto its cached form.
func InfoFromCommit(c model.Commit) CommitInfo {
	info := CommitInfo{
		RootTree:            c.RootTree,
		EdgeBatches:         append([]objectid.ID(nil), c.EdgeBatches...),
		CargoSnapshot:       c.CargoSnapshot,
		RustSnapshot:        c.RustSnapshot,
		DiagnosticsSnapshot: c.DiagnosticsSnapshot,
	}
	for _, n := range c.NarrativeRefs {
		info.NarrativeRefs = append(info.NarrativeRefs, n.Path)
	}
	return info
}

// Index is a handle on the bbolt database. All mutations run in a single
// write transaction; reads see a consistent snapshot.
type Index struct {
	db   *bolt.DB
	path string
}

// Open opens an existing index database, validating the schema version.
// Returns (nil, nil) when the file does not exist.
func Open(path string) (*Index, error) {
	if !fileExists(path) {
		return nil, nil
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, ctxerr.IndexCorrupted("open database: " + err.Error())
	}
	idx := &Index{db: db, path: path}
	if err := idx.checkVersion(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Create makes a new index database, failing if one already exists at the
// path, and stamps the schema version.
func Create(path string) (*Index, error) {
	if fileExists(path) {
		return nil, ctxerr.IndexCorrupted("database already exists: " + path)
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, ctxerr.IndexCorrupted("create database: " + err.Error())
	}
	idx := &Index{db: db, path: path}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketPathToID, bucketNameToIDs, bucketCommitInfo, bucketAdjacency, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		version := binary.LittleEndian.AppendUint32(nil, SchemaVersion)
		return tx.Bucket(bucketMetadata).Put(keyVersion, version)
	})
	if err != nil {
		db.Close()
		return nil, ctxerr.IndexCorrupted("initialize database: " + err.Error())
	}
	return idx, nil
}

// Close releases the database handle.
func (i *Index) Close() error {
	return i.db.Close()
}

// Path returns the database file path.
func (i *Index) Path() string {
	return i.path
}

func (i *Index) checkVersion() error {
	return i.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMetadata)
		if meta == nil {
			return ctxerr.IndexCorrupted("missing metadata bucket")
		}
		raw := meta.Get(keyVersion)
		if len(raw) != 4 {
			return ctxerr.IndexCorrupted("missing schema version")
		}
		if v := binary.LittleEndian.Uint32(raw); v != SchemaVersion {
			return ctxerr.IndexCorrupted(
				"schema version " + itoa(int(v)) + ", expected " + itoa(SchemaVersion))
		}
		return nil
	})
}

// IndexFilePath records a single path -> blob id mapping.
func (i *Index) IndexFilePath(path string, id objectid.ID) error {
	return i.update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPathToID).Put([]byte(path), id[:])
	})
}

// IndexFilePaths records a batch of path mappings in one transaction.
func (i *Index) IndexFilePaths(paths map[string]objectid.ID) error {
	return i.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPathToID)
		for path, id := range paths {
			if err := b.Put([]byte(path), id[:]); err != nil {
				return err
			}
		}
		return nil
	})
}

// LookupPath resolves a file path to its blob id.
func (i *Index) LookupPath(path string) (objectid.ID, bool, error) {
	var id objectid.ID
	var found bool
	err := i.view(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketPathToID).Get([]byte(path))
		if len(raw) == objectid.Len {
			copy(id[:], raw)
			found = true
		}
		return nil
	})
	return id, found, err
}

// SearchPathsBySubstring returns up to limit indexed paths containing any of
// the needles, case-insensitive, sorted by path.
func (i *Index) SearchPathsBySubstring(needles []string, limit int) ([]string, error) {
	lowered := make([]string, len(needles))
	for k, n := range needles {
		lowered[k] = strings.ToLower(n)
	}

	var matches []string
	err := i.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPathToID).ForEach(func(k, _ []byte) error {
			path := string(k)
			lc := strings.ToLower(path)
			for _, n := range lowered {
				if strings.Contains(lc, n) {
					matches = append(matches, path)
					break
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// LookupName returns the ids recorded under a namespaced name.
func (i *Index) LookupName(ns Namespace, name string) ([]objectid.ID, error) {
	var ids []objectid.ID
	err := i.view(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketNameToIDs).Get(nameKey(ns, name))
		if raw == nil {
			return nil
		}
		var err error
		ids, err = decodeIDSet(raw)
		return err
	})
	return ids, err
}

// GetEdgesFrom returns nodes reachable over one outgoing edge with the label.
func (i *Index) GetEdgesFrom(node model.NodeID, label model.EdgeLabel) ([]model.NodeID, error) {
	return i.adjacent(node, Outgoing, label)
}

// GetEdgesTo returns nodes with an edge of the label pointing at node.
func (i *Index) GetEdgesTo(node model.NodeID, label model.EdgeLabel) ([]model.NodeID, error) {
	return i.adjacent(node, Incoming, label)
}

func (i *Index) adjacent(node model.NodeID, dir Direction, label model.EdgeLabel) ([]model.NodeID, error) {
	var nodes []model.NodeID
	err := i.view(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAdjacency).Get(adjacencyKey(node, dir, label))
		if raw == nil {
			return nil
		}
		var err error
		nodes, err = decodeNodeSet(raw)
		return err
	})
	return nodes, err
}

// GetCommitInfo returns the cached metadata for a commit, if present.
func (i *Index) GetCommitInfo(commitID objectid.ID) (CommitInfo, bool, error) {
	var info CommitInfo
	var found bool
	err := i.view(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCommitInfo).Get(commitID[:])
		if raw == nil {
			return nil
		}
		var err error
		info, err = decodeCommitInfo(raw)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return info, found, err
}

// AddCommitEdges incrementally extends the index with a commit's edges:
// adjacency both directions, name entries for namespaced endpoints, and the
// cached CommitInfo - all in one write transaction.
func (i *Index) AddCommitEdges(commitID objectid.ID, commit model.Commit, batches []model.EdgeBatch) error {
	return i.update(func(tx *bolt.Tx) error {
		for _, batch := range batches {
			for _, edge := range batch.Edges {
				if err := addEdge(tx, edge); err != nil {
					return err
				}
			}
		}
		info := InfoFromCommit(commit)
		return tx.Bucket(bucketCommitInfo).Put(commitID[:], encodeCommitInfo(info))
	})
}

// addEdge inserts one edge into both adjacency directions and the name table.
func addEdge(tx *bolt.Tx, edge model.Edge) error {
	adj := tx.Bucket(bucketAdjacency)
	if err := insertNode(adj, adjacencyKey(edge.From, Outgoing, edge.Label), edge.To); err != nil {
		return err
	}
	if err := insertNode(adj, adjacencyKey(edge.To, Incoming, edge.Label), edge.From); err != nil {
		return err
	}

	names := tx.Bucket(bucketNameToIDs)
	evidenceID := edge.Evidence.CommitID
	if edge.Evidence.BlobID != nil {
		evidenceID = *edge.Evidence.BlobID
	}
	for _, node := range []model.NodeID{edge.From, edge.To} {
		ns, ok := NamespaceFor(node.Kind)
		if !ok {
			continue
		}
		if err := insertID(names, nameKey(ns, shortName(node.ID)), evidenceID); err != nil {
			return err
		}
	}
	return nil
}

// shortName reduces a qualified id like a::b::c to its final segment.
func shortName(id string) string {
	if idx := strings.LastIndex(id, "::"); idx >= 0 {
		return id[idx+2:]
	}
	return id
}

func insertNode(b *bolt.Bucket, key []byte, node model.NodeID) error {
	nodes, err := decodeNodeSet(b.Get(key))
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if n == node {
			return nil
		}
	}
	nodes = append(nodes, node)
	sortNodes(nodes)
	return b.Put(key, encodeNodeSet(nodes))
}

func insertID(b *bolt.Bucket, key []byte, id objectid.ID) error {
	ids, err := decodeIDSet(b.Get(key))
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	sort.Slice(ids, func(x, y int) bool { return bytes.Compare(ids[x][:], ids[y][:]) < 0 })
	return b.Put(key, encodeIDSet(ids))
}

func (i *Index) update(fn func(*bolt.Tx) error) error {
	if err := i.db.Update(fn); err != nil {
		var ce *ctxerr.Error
		if asCtxErr(err, &ce) {
			return ce
		}
		return ctxerr.IndexCorrupted(err.Error())
	}
	return nil
}

func (i *Index) view(fn func(*bolt.Tx) error) error {
	if err := i.db.View(fn); err != nil {
		var ce *ctxerr.Error
		if asCtxErr(err, &ce) {
			return ce
		}
		return ctxerr.IndexCorrupted(err.Error())
	}
	return nil
}
