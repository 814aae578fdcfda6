// Package verify audits repository integrity: refs resolve, reachable
// commits decode with their trees and batches present, and (optionally)
// every stored object survives a full envelope-and-hash read.
package verify

import (
	"fmt"
	"strings"

	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
	"github.com/ctxgraph/ctx/internal/refs"
	"github.com/ctxgraph/ctx/internal/store"
)

// Config toggles the three check groups.
type Config struct {
	CheckRefs    bool
	CheckCommits bool
	// CheckObjects forces a verifying read of every object. Slow.
	CheckObjects bool
}

// DefaultConfig runs the fast checks only.
func DefaultConfig() Config {
	return Config{CheckRefs: true, CheckCommits: true}
}

// Report enumerates everything the audit found.
type Report struct {
	RefsChecked      int
	CommitsChecked   int
	ObjectsChecked   int
	DanglingRefs     []string
	InvalidCommits   []string
	CorruptedObjects []string
}

// HasIssues reports whether the audit found anything wrong.
func (r *Report) HasIssues() bool {
	return len(r.DanglingRefs) > 0 || len(r.InvalidCommits) > 0 || len(r.CorruptedObjects) > 0
}

// Summary renders a short human-readable report.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "refs checked: %d, commits checked: %d, objects checked: %d\n",
		r.RefsChecked, r.CommitsChecked, r.ObjectsChecked)
	if !r.HasIssues() {
		b.WriteString("no issues found\n")
		return b.String()
	}
	for _, d := range r.DanglingRefs {
		fmt.Fprintf(&b, "dangling ref: %s\n", d)
	}
	for _, c := range r.InvalidCommits {
		fmt.Fprintf(&b, "invalid commit: %s\n", c)
	}
	for _, o := range r.CorruptedObjects {
		fmt.Fprintf(&b, "corrupted object: %s\n", o)
	}
	return b.String()
}

// Run performs the configured checks.
func Run(r *refs.Refs, st *store.Store, cfg Config) (Report, error) {
	var report Report

	if cfg.CheckRefs {
		checkRefs(r, st, &report)
	}
	if cfg.CheckCommits {
		if err := checkCommits(r, st, &report); err != nil {
			return report, err
		}
	}
	if cfg.CheckObjects {
		if err := checkObjects(st, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// checkRefs verifies HEAD, STAGE, and every ref resolve to an existing
// object. Existence only; no hash verification.
func checkRefs(r *refs.Refs, st *store.Store, report *Report) {
	if head, err := r.ReadHead(); err == nil {
		report.RefsChecked++
		if !st.Exists(head) {
			report.DanglingRefs = append(report.DanglingRefs, "HEAD -> "+head.Hex())
		}
	}
	if stage, ok, err := r.ReadStage(); err == nil && ok {
		report.RefsChecked++
		if !st.Exists(stage) {
			report.DanglingRefs = append(report.DanglingRefs, "STAGE -> "+stage.Hex())
		}
	}
	named, err := r.ListRefs()
	if err != nil {
		report.DanglingRefs = append(report.DanglingRefs, "refs/: "+err.Error())
		return
	}
	for _, n := range named {
		report.RefsChecked++
		if !st.Exists(n.ID) {
			report.DanglingRefs = append(report.DanglingRefs, n.Name+" -> "+n.ID.Hex())
		}
	}
}

// checkCommits BFS-walks commits from HEAD and all refs, requiring each to
// decode and its root tree and edge batches to exist.
func checkCommits(r *refs.Refs, st *store.Store, report *Report) error {
	var roots []objectid.ID
	if head, err := r.ReadHead(); err == nil {
		roots = append(roots, head)
	}
	named, err := r.ListRefs()
	if err == nil {
		for _, n := range named {
			roots = append(roots, n.ID)
		}
	}

	seen := make(map[objectid.ID]struct{})
	queue := roots

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		var commit model.Commit
		if err := st.GetTyped(id, &commit); err != nil {
			report.InvalidCommits = append(report.InvalidCommits, id.Hex()+": "+err.Error())
			continue
		}
		report.CommitsChecked++

		if !st.Exists(commit.RootTree) {
			report.InvalidCommits = append(report.InvalidCommits,
				id.Hex()+": missing root tree "+commit.RootTree.Hex())
		}
		for _, batchID := range commit.EdgeBatches {
			if !st.Exists(batchID) {
				report.InvalidCommits = append(report.InvalidCommits,
					id.Hex()+": missing edge batch "+batchID.Hex())
			}
		}
		queue = append(queue, commit.Parents...)
	}
	return nil
}

// checkObjects forces a verifying read of every object in the store.
func checkObjects(st *store.Store, report *Report) error {
	entries, err := st.ListAll()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		report.ObjectsChecked++
		// Kind is unknown up front; try blob first, then typed. Either
		// succeeding proves envelope and hash integrity.
		if _, err := st.GetBlob(entry.ID); err == nil {
			continue
		}
		if _, err := st.GetTypedRaw(entry.ID); err != nil {
			report.CorruptedObjects = append(report.CorruptedObjects, entry.ID.Hex()+": "+err.Error())
		}
	}
	return nil
}
