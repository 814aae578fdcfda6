package index

import (
	"os"

	bolt "go.etcd.io/bbolt"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/logging"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
	"github.com/ctxgraph/ctx/internal/store"
)

// RebuildConfig controls rebuild behavior.
type RebuildConfig struct {
	// SkipCorrupted logs unreadable commits, trees, and batches instead of
	// aborting the rebuild.
	SkipCorrupted bool
}

// RebuildReport summarizes a rebuild.
type RebuildReport struct {
	CommitsIndexed int
	EdgesIndexed   int
	PathsIndexed   int
	// Skipped lists objects that could not be read (SkipCorrupted mode).
	Skipped []string
}

// Rebuild regenerates the index database from the object store, walking
// commits from head. Existing path_to_id entries are preserved across the
// rebuild: external analyzers populate paths outside the commit tree.
// The previous Index handle (may be nil) is closed and replaced.
func Rebuild(prev *Index, path string, head objectid.ID, st *store.Store, cfg RebuildConfig) (*Index, RebuildReport, error) {
	var report RebuildReport

	// Capture path entries before dropping the database.
	preserved := make(map[string]objectid.ID)
	if prev != nil {
		err := prev.view(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketPathToID).ForEach(func(k, v []byte) error {
				if len(v) == objectid.Len {
					var id objectid.ID
					copy(id[:], v)
					preserved[string(k)] = id
				}
				return nil
			})
		})
		if err != nil {
			return nil, report, err
		}
		if err := prev.Close(); err != nil {
			return nil, report, ctxerr.IndexCorrupted("close previous database: " + err.Error())
		}
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, report, ctxerr.Wrap(err, ctxerr.KindIo, "remove old index")
	}

	idx, err := Create(path)
	if err != nil {
		return nil, report, err
	}

	skip := func(id objectid.ID, what string, cause error) error {
		if cfg.SkipCorrupted {
			logging.Warn("skipping unreadable object during rebuild",
				"what", what, "id", id.Hex(), "error", cause)
			report.Skipped = append(report.Skipped, what+":"+id.Hex())
			return nil
		}
		return cause
	}

	err = idx.update(func(tx *bolt.Tx) error {
		paths := tx.Bucket(bucketPathToID)
		for p, id := range preserved {
			if err := paths.Put([]byte(p), id[:]); err != nil {
				return err
			}
		}
		report.PathsIndexed = len(preserved)

		// BFS over the commit DAG from head.
		queue := []objectid.ID{head}
		seen := map[objectid.ID]struct{}{head: {}}
		first := true

		for len(queue) > 0 {
			commitID := queue[0]
			queue = queue[1:]

			var commit model.Commit
			if err := st.GetTyped(commitID, &commit); err != nil {
				if serr := skip(commitID, "commit", err); serr != nil {
					return serr
				}
				first = false
				continue
			}

			info := InfoFromCommit(commit)
			if err := tx.Bucket(bucketCommitInfo).Put(commitID[:], encodeCommitInfo(info)); err != nil {
				return err
			}
			report.CommitsIndexed++

			// Only HEAD's tree defines the current path mapping.
			if first {
				n, err := indexTreePaths(tx, st, commit.RootTree, "", cfg, &report)
				if err != nil {
					return err
				}
				report.PathsIndexed += n
			}
			first = false

			for _, batchID := range commit.EdgeBatches {
				var batch model.EdgeBatch
				if err := st.GetTyped(batchID, &batch); err != nil {
					if serr := skip(batchID, "edge batch", err); serr != nil {
						return serr
					}
					continue
				}
				for _, edge := range batch.Edges {
					if err := addEdge(tx, edge); err != nil {
						return err
					}
					report.EdgesIndexed++
				}
			}

			for _, parent := range commit.Parents {
				if _, ok := seen[parent]; !ok {
					seen[parent] = struct{}{}
					queue = append(queue, parent)
				}
			}
		}
		return nil
	})
	if err != nil {
		idx.Close()
		return nil, report, err
	}
	return idx, report, nil
}

// indexTreePaths descends a tree and records a path entry for every blob and
// subtree, prefix-joined with slashes.
func indexTreePaths(tx *bolt.Tx, st *store.Store, treeID objectid.ID, prefix string, cfg RebuildConfig, report *RebuildReport) (int, error) {
	var tree model.Tree
	if err := st.GetTyped(treeID, &tree); err != nil {
		if cfg.SkipCorrupted {
			logging.Warn("skipping unreadable tree during rebuild", "id", treeID.Hex(), "error", err)
			report.Skipped = append(report.Skipped, "tree:"+treeID.Hex())
			return 0, nil
		}
		return 0, err
	}

	count := 0
	bucket := tx.Bucket(bucketPathToID)
	for _, entry := range tree.Entries {
		path := entry.Name
		if prefix != "" {
			path = prefix + "/" + entry.Name
		}
		if err := bucket.Put([]byte(path), entry.ID[:]); err != nil {
			return count, err
		}
		count++
		if entry.Kind == model.EntryTree {
			n, err := indexTreePaths(tx, st, entry.ID, path, cfg, report)
			if err != nil {
				return count, err
			}
			count += n
		}
	}
	return count, nil
}
