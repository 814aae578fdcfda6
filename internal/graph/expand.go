package graph

import (
	"github.com/ctxgraph/ctx/internal/model"
)

// Adjacency is the label-keyed neighborhood lookup that expansion runs on.
// The index satisfies it, keeping expansion I/O-bounded by label lookups
// instead of whole-graph size.
type Adjacency interface {
	GetEdgesFrom(node model.NodeID, label model.EdgeLabel) ([]model.NodeID, error)
	GetEdgesTo(node model.NodeID, label model.EdgeLabel) ([]model.NodeID, error)
}

// ExpansionConfig bounds a BFS expansion.
type ExpansionConfig struct {
	MaxDepth      int
	Labels        []model.EdgeLabel
	MaxNodes      int
	Bidirectional bool
}

// DefaultExpansionConfig follows import/reference/call/contains edges two hops out.
func DefaultExpansionConfig() ExpansionConfig {
	return ExpansionConfig{
		MaxDepth: 2,
		Labels: []model.EdgeLabel{
			model.LabelImports,
			model.LabelReferences,
			model.LabelCalls,
			model.LabelContains,
		},
		MaxNodes:      100,
		Bidirectional: true,
	}
}

// ExpansionResult reports the visited frontier.
type ExpansionResult struct {
	// Nodes in visit order; seeds come first.
	Nodes []model.NodeID
	// Depths records the first-seen depth per node.
	Depths map[model.NodeID]int
	// Seeds are the original starting nodes.
	Seeds []model.NodeID
	// Truncated is set when MaxNodes cut the expansion short.
	Truncated bool
}

// ExpandFromSeeds runs a breadth-first expansion over the configured labels.
// Expansion stops when the frontier empties, depth passes MaxDepth, or the
// visited count reaches MaxNodes.
func ExpandFromSeeds(seeds []model.NodeID, cfg ExpansionConfig, adj Adjacency) (ExpansionResult, error) {
	result := ExpansionResult{
		Depths: make(map[model.NodeID]int),
		Seeds:  append([]model.NodeID(nil), seeds...),
	}

	type frontierEntry struct {
		node  model.NodeID
		depth int
	}

	var queue []frontierEntry
	for _, seed := range seeds {
		if _, ok := result.Depths[seed]; ok {
			continue
		}
		result.Depths[seed] = 0
		result.Nodes = append(result.Nodes, seed)
		queue = append(queue, frontierEntry{node: seed, depth: 0})
	}

	for len(queue) > 0 {
		if cfg.MaxNodes > 0 && len(result.Nodes) >= cfg.MaxNodes {
			result.Truncated = true
			break
		}
		entry := queue[0]
		queue = queue[1:]

		if entry.depth >= cfg.MaxDepth {
			continue
		}

		for _, label := range cfg.Labels {
			neighbors, err := adj.GetEdgesFrom(entry.node, label)
			if err != nil {
				return result, err
			}
			if cfg.Bidirectional {
				incoming, err := adj.GetEdgesTo(entry.node, label)
				if err != nil {
					return result, err
				}
				neighbors = append(neighbors, incoming...)
			}

			for _, n := range neighbors {
				if _, seen := result.Depths[n]; seen {
					continue
				}
				if cfg.MaxNodes > 0 && len(result.Nodes) >= cfg.MaxNodes {
					result.Truncated = true
					return result, nil
				}
				result.Depths[n] = entry.depth + 1
				result.Nodes = append(result.Nodes, n)
				queue = append(queue, frontierEntry{node: n, depth: entry.depth + 1})
			}
		}
	}
	return result, nil
}
