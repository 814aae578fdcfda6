// Package staging turns chains of WorkCommits into canonical commits: chain
// walking, observation aggregation, tree rebuild from writes, and edge
// extraction.
package staging

import (
	"sort"
	"strings"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
	"github.com/ctxgraph/ctx/internal/store"
)

// Step pairs a WorkCommit with its id.
type Step struct {
	ID   objectid.ID
	Work model.WorkCommit
}

// WalkChain follows first-parent links from the staging head back to the base
// commit and returns the steps oldest-first. A chain that ends anywhere but
// the base is corrupted.
func WalkChain(stagingHead, baseCommit objectid.ID, st *store.Store) ([]Step, error) {
	var chain []Step
	current := stagingHead

	for current != baseCommit {
		var work model.WorkCommit
		if err := st.GetTyped(current, &work); err != nil {
			return nil, ctxerr.StagingCorrupted("missing WorkCommit: " + current.Hex())
		}
		chain = append(chain, Step{ID: current, Work: work})

		if len(work.Parents) == 0 {
			return nil, ctxerr.StagingCorrupted(
				"chain ended at " + current.Hex() + " without reaching base " + baseCommit.Hex())
		}
		current = work.Parents[0]
	}

	// Reverse to oldest-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// CollectObservations decodes and concatenates the observation payloads of a
// chain, oldest step first.
func CollectObservations(chain []Step) ([]model.Observation, error) {
	var all []model.Observation
	for _, step := range chain {
		obs, err := model.DecodeObservations(step.Work.Payload)
		if err != nil {
			return nil, err
		}
		all = append(all, obs...)
	}
	return all, nil
}

// CollectNarrativeRefs gathers narrative refs from each step in chain order.
func CollectNarrativeRefs(chain []Step) []model.NarrativeRef {
	var refs []model.NarrativeRef
	for _, step := range chain {
		refs = append(refs, step.Work.NarrativeRefs...)
	}
	return refs
}

// Compact aggregates a staging chain into a canonical Commit value. The
// caller stores the commit and advances refs; this function only builds it.
func Compact(stagingHead, baseCommit objectid.ID, message string, commitType model.CommitType, now int64, st *store.Store) (model.Commit, error) {
	chain, err := WalkChain(stagingHead, baseCommit, st)
	if err != nil {
		return model.Commit{}, err
	}

	var base model.Commit
	if err := st.GetTyped(baseCommit, &base); err != nil {
		return model.Commit{}, err
	}

	observations, err := CollectObservations(chain)
	if err != nil {
		return model.Commit{}, err
	}

	rootTree, err := BuildTreeFromObservations(observations, base.RootTree, st)
	if err != nil {
		return model.Commit{}, err
	}

	edgeBatches, err := ExtractEdges(observations, baseCommit, now, st)
	if err != nil {
		return model.Commit{}, err
	}

	ct := commitType
	return model.Commit{
		Parents:             []objectid.ID{baseCommit},
		Timestamp:           now,
		Message:             message,
		RootTree:            rootTree,
		EdgeBatches:         edgeBatches,
		NarrativeRefs:       CollectNarrativeRefs(chain),
		CargoSnapshot:       base.CargoSnapshot,
		RustSnapshot:        base.RustSnapshot,
		DiagnosticsSnapshot: base.DiagnosticsSnapshot,
		CommitType:          &ct,
	}, nil
}

// BuildTreeFromObservations rebuilds the root tree from file writes, taking
// the last-written content id per path. With no writes the base root is kept
// as-is. The rebuilt root contains only written paths; untouched base
// subtrees are not re-linked.
func BuildTreeFromObservations(observations []model.Observation, baseTree objectid.ID, st *store.Store) (objectid.ID, error) {
	fileMap := make(map[string]objectid.ID)
	for _, obs := range observations {
		if obs.Kind == model.ObsFileWrite && obs.ContentID != nil {
			fileMap[obs.Path] = *obs.ContentID
		}
	}
	if len(fileMap) == 0 {
		return baseTree, nil
	}
	return buildTreeFromPaths(fileMap, st)
}

type pendingEntry struct {
	kind model.TreeEntryKind
	id   objectid.ID
}

// buildTreeFromPaths materializes Tree objects for every directory implied by
// the path set, deepest first, substituting child tree ids into parents.
func buildTreeFromPaths(fileMap map[string]objectid.ID, st *store.Store) (objectid.ID, error) {
	// dir path ("" = root) -> entry name -> pending entry
	dirs := make(map[string]map[string]pendingEntry)
	ensure := func(dir string) map[string]pendingEntry {
		m, ok := dirs[dir]
		if !ok {
			m = make(map[string]pendingEntry)
			dirs[dir] = m
		}
		return m
	}

	for path, contentID := range fileMap {
		parts := strings.Split(path, "/")
		if len(parts) == 0 || path == "" {
			continue
		}

		filename := parts[len(parts)-1]
		dirPath := strings.Join(parts[:len(parts)-1], "/")
		ensure(dirPath)[filename] = pendingEntry{kind: model.EntryBlob, id: contentID}

		// Register every intermediate directory in its parent.
		current := ""
		for _, part := range parts[:len(parts)-1] {
			parent := current
			if current == "" {
				current = part
			} else {
				current = current + "/" + part
			}
			ensure(parent)[part] = pendingEntry{kind: model.EntryTree}
		}
	}

	// Deepest directories first so children exist before their parents.
	sorted := make([]string, 0, len(dirs))
	for dir := range dirs {
		sorted = append(sorted, dir)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return depth(sorted[i]) > depth(sorted[j])
	})

	built := make(map[string]objectid.ID)
	for _, dir := range sorted {
		entries := make([]model.TreeEntry, 0, len(dirs[dir]))
		for name, pe := range dirs[dir] {
			id := pe.id
			if pe.kind == model.EntryTree {
				sub := name
				if dir != "" {
					sub = dir + "/" + name
				}
				id = built[sub]
			}
			entries = append(entries, model.TreeEntry{Name: name, Kind: pe.kind, ID: id})
		}
		tree := model.NewTree(entries)
		id, err := st.PutTyped(tree)
		if err != nil {
			return objectid.ID{}, err
		}
		built[dir] = id
	}

	root, ok := built[""]
	if !ok {
		return objectid.ID{}, ctxerr.StagingCorrupted("no root tree produced")
	}
	return root, nil
}

func depth(dir string) int {
	if dir == "" {
		return 0
	}
	return strings.Count(dir, "/") + 1
}

// ExtractEdges emits one UpdatedIn self-loop per written path, sorted, packed
// into a single EdgeBatch. The self-loop marks that the file was touched in
// this session; evidence points at the base commit. No writes, no batch.
func ExtractEdges(observations []model.Observation, baseCommit objectid.ID, now int64, st *store.Store) ([]objectid.ID, error) {
	written := make(map[string]struct{})
	for _, obs := range observations {
		if obs.Kind == model.ObsFileWrite {
			written[obs.Path] = struct{}{}
		}
	}
	if len(written) == 0 {
		return nil, nil
	}

	paths := make([]string, 0, len(written))
	for p := range written {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	edges := make([]model.Edge, 0, len(paths))
	for _, p := range paths {
		node := model.FileNode(p)
		edges = append(edges, model.Edge{
			From:  node,
			To:    node,
			Label: model.LabelUpdatedIn,
			Evidence: model.Evidence{
				CommitID:   baseCommit,
				Tool:       model.ToolHuman,
				Confidence: model.ConfidenceHigh,
			},
		})
	}

	batch := model.EdgeBatch{Edges: edges, CreatedAt: now}
	id, err := st.PutTyped(batch)
	if err != nil {
		return nil, err
	}
	return []objectid.ID{id}, nil
}
