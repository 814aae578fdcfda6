// Package gc implements mark-and-sweep garbage collection over the object
// store. Roots are HEAD, STAGE, and every ref; sweep respects a grace period
// keyed on file mtime. GC must only run while no session is active.
package gc

import (
	"time"

	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
	"github.com/ctxgraph/ctx/internal/refs"
	"github.com/ctxgraph/ctx/internal/store"
)

// Config controls a collection run.
type Config struct {
	// GracePeriodDays protects recently written objects from sweep.
	GracePeriodDays int
	// Aggressive sets the grace period to zero.
	Aggressive bool
	// DryRun counts deletions without performing them.
	DryRun bool
}

// Report summarizes a collection.
type Report struct {
	ObjectsScanned   int
	ObjectsReachable int
	ObjectsDeleted   int
	BytesFreed       int64
	// Errors records individual delete failures; they do not abort the run.
	Errors []string
}

// Run performs a full mark-and-sweep collection.
func Run(r *refs.Refs, st *store.Store, cfg Config) (Report, error) {
	var report Report

	roots, err := collectRoots(r)
	if err != nil {
		return report, err
	}

	reachable := markReachable(st, roots)
	report.ObjectsReachable = len(reachable)

	grace := time.Duration(cfg.GracePeriodDays) * 24 * time.Hour
	if cfg.Aggressive {
		grace = 0
	}
	cutoff := time.Now().Add(-grace)

	entries, err := st.ListAll()
	if err != nil {
		return report, err
	}
	report.ObjectsScanned = len(entries)

	for _, entry := range entries {
		if _, ok := reachable[entry.ID]; ok {
			continue
		}
		if entry.ModTime.After(cutoff) {
			continue
		}
		if cfg.DryRun {
			report.ObjectsDeleted++
			report.BytesFreed += entry.Size
			continue
		}
		if err := st.Delete(entry.ID); err != nil {
			report.Errors = append(report.Errors, entry.ID.Hex()+": "+err.Error())
			continue
		}
		report.ObjectsDeleted++
		report.BytesFreed += entry.Size
	}
	return report, nil
}

// collectRoots gathers HEAD (if present), STAGE (if present), and all refs.
func collectRoots(r *refs.Refs) ([]objectid.ID, error) {
	var roots []objectid.ID

	if head, err := r.ReadHead(); err == nil {
		roots = append(roots, head)
	}
	if stage, ok, err := r.ReadStage(); err == nil && ok {
		roots = append(roots, stage)
	}
	named, err := r.ListRefs()
	if err != nil {
		return nil, err
	}
	for _, n := range named {
		roots = append(roots, n.ID)
	}
	return roots, nil
}

// markReachable BFS-walks the object graph. Each popped node is tried as a
// Commit, a Tree, and a WorkCommit independently; a node that is none of
// them is a leaf. Decode failures are ignored by design - marking must never
// fail outright.
func markReachable(st *store.Store, roots []objectid.ID) map[objectid.ID]struct{} {
	reachable := make(map[objectid.ID]struct{})
	queue := append([]objectid.ID(nil), roots...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if _, seen := reachable[id]; seen {
			continue
		}
		reachable[id] = struct{}{}

		var commit model.Commit
		if err := st.GetTyped(id, &commit); err == nil {
			queue = append(queue, commit.Parents...)
			queue = append(queue, commit.RootTree)
			queue = append(queue, commit.EdgeBatches...)
			for _, n := range commit.NarrativeRefs {
				queue = append(queue, n.BlobID)
			}
			for _, snap := range []*objectid.ID{commit.CargoSnapshot, commit.RustSnapshot, commit.DiagnosticsSnapshot} {
				if snap != nil {
					queue = append(queue, *snap)
				}
			}
		}

		var tree model.Tree
		if err := st.GetTyped(id, &tree); err == nil {
			for _, entry := range tree.Entries {
				queue = append(queue, entry.ID)
			}
		}

		// STAGE roots a WorkCommit chain; follow it so an active or
		// recovered staging chain is never swept out from under a session.
		var work model.WorkCommit
		if err := st.GetTyped(id, &work); err == nil {
			queue = append(queue, work.Parents...)
			queue = append(queue, work.Base)
			for _, n := range work.NarrativeRefs {
				queue = append(queue, n.BlobID)
			}
			if obs, err := model.DecodeObservations(work.Payload); err == nil {
				for _, o := range obs {
					if o.ContentID != nil {
						queue = append(queue, *o.ContentID)
					}
					if o.OutputID != nil {
						queue = append(queue, *o.OutputID)
					}
				}
			}
		}
	}
	return reachable
}
