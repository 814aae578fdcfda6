// Package graph provides the in-memory adjacency view over edge batches,
// Tarjan strongly connected components with condensation and DOT export over
// that view, and BFS expansion over any label-keyed Adjacency source.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ctxgraph/ctx/internal/model"
)

// AdjacencyList materializes a whole-graph view from edge batches. Forward
// and reverse maps are kept value-typed to stay cycle-safe.
type AdjacencyList struct {
	forward map[model.NodeID][]LabeledNode
	reverse map[model.NodeID][]LabeledNode
	nodes   map[model.NodeID]struct{}
}

// LabeledNode is one adjacency entry.
type LabeledNode struct {
	Label model.EdgeLabel
	Node  model.NodeID
}

// FromEdgeBatches builds an adjacency list over all edges in the batches.
func FromEdgeBatches(batches []model.EdgeBatch) *AdjacencyList {
	a := &AdjacencyList{
		forward: make(map[model.NodeID][]LabeledNode),
		reverse: make(map[model.NodeID][]LabeledNode),
		nodes:   make(map[model.NodeID]struct{}),
	}
	for _, batch := range batches {
		for _, e := range batch.Edges {
			a.forward[e.From] = append(a.forward[e.From], LabeledNode{Label: e.Label, Node: e.To})
			a.reverse[e.To] = append(a.reverse[e.To], LabeledNode{Label: e.Label, Node: e.From})
			a.nodes[e.From] = struct{}{}
			a.nodes[e.To] = struct{}{}
		}
	}
	return a
}

// Outgoing returns the labeled successors of a node.
func (a *AdjacencyList) Outgoing(node model.NodeID) []LabeledNode {
	return a.forward[node]
}

// Incoming returns the labeled predecessors of a node.
func (a *AdjacencyList) Incoming(node model.NodeID) []LabeledNode {
	return a.reverse[node]
}

// Nodes returns every node in deterministic order.
func (a *AdjacencyList) Nodes() []model.NodeID {
	out := make([]model.NodeID, 0, len(a.nodes))
	for n := range a.nodes {
		out = append(out, n)
	}
	sortNodeIDs(out)
	return out
}

// NodeCount returns the number of distinct nodes.
func (a *AdjacencyList) NodeCount() int {
	return len(a.nodes)
}

// EdgeCount returns the number of edges.
func (a *AdjacencyList) EdgeCount() int {
	total := 0
	for _, succs := range a.forward {
		total += len(succs)
	}
	return total
}

func sortNodeIDs(nodes []model.NodeID) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Kind != nodes[j].Kind {
			return nodes[i].Kind < nodes[j].Kind
		}
		return nodes[i].ID < nodes[j].ID
	})
}

// NodeLabel renders a node for display and DOT output.
func NodeLabel(n model.NodeID) string {
	return fmt.Sprintf("%s:%s", kindName(n.Kind), n.ID)
}

func kindName(k model.NodeKind) string {
	switch k {
	case model.NodeFile:
		return "File"
	case model.NodeModule:
		return "Module"
	case model.NodeItem:
		return "Item"
	case model.NodePackage:
		return "Package"
	case model.NodeTarget:
		return "Target"
	case model.NodeCrate:
		return "Crate"
	case model.NodeTask:
		return "Task"
	case model.NodeNote:
		return "Note"
	case model.NodeDecision:
		return "Decision"
	case model.NodeDiagnostic:
		return "Diagnostic"
	default:
		return "Unknown"
	}
}

// ToDot renders the adjacency list as a DOT digraph.
func (a *AdjacencyList) ToDot() string {
	var b strings.Builder
	b.WriteString("digraph ctx {\n")
	for _, from := range a.Nodes() {
		succs := append([]LabeledNode(nil), a.forward[from]...)
		sort.Slice(succs, func(i, j int) bool {
			if succs[i].Label != succs[j].Label {
				return succs[i].Label < succs[j].Label
			}
			if succs[i].Node.Kind != succs[j].Node.Kind {
				return succs[i].Node.Kind < succs[j].Node.Kind
			}
			return succs[i].Node.ID < succs[j].Node.ID
		})
		for _, s := range succs {
			fmt.Fprintf(&b, "  %q -> %q [label=%q];\n",
				NodeLabel(from), NodeLabel(s.Node), labelName(s.Label))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func labelName(l model.EdgeLabel) string {
	switch l {
	case model.LabelContains:
		return "Contains"
	case model.LabelDefines:
		return "Defines"
	case model.LabelHasVersion:
		return "HasVersion"
	case model.LabelDependsOn:
		return "DependsOn"
	case model.LabelTargetOf:
		return "TargetOf"
	case model.LabelCrateFromTarget:
		return "CrateFromTarget"
	case model.LabelImports:
		return "Imports"
	case model.LabelReferences:
		return "References"
	case model.LabelCalls:
		return "Calls"
	case model.LabelImplements:
		return "Implements"
	case model.LabelUsesType:
		return "UsesType"
	case model.LabelMentions:
		return "Mentions"
	case model.LabelUpdatedIn:
		return "UpdatedIn"
	case model.LabelDerivedFrom:
		return "DerivedFrom"
	default:
		return "Unknown"
	}
}
