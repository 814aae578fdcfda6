package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ctxgraph/ctx/internal/model"
)

// SccID identifies one strongly connected component.
type SccID int

// SccView is the result of Tarjan's algorithm plus the condensation DAG and
// its topological order.
type SccView struct {
	nodeToScc  map[model.NodeID]SccID
	members    [][]model.NodeID
	deps       [][]SccID // condensation edges, deduplicated
	topoOrder  []SccID
}

// SccOf returns the component containing a node.
func (v *SccView) SccOf(node model.NodeID) (SccID, bool) {
	id, ok := v.nodeToScc[node]
	return id, ok
}

// Members returns the nodes of a component.
func (v *SccView) Members(scc SccID) []model.NodeID {
	if int(scc) >= len(v.members) {
		return nil
	}
	return v.members[scc]
}

// Dependencies returns the components this component has edges into.
func (v *SccView) Dependencies(scc SccID) []SccID {
	if int(scc) >= len(v.deps) {
		return nil
	}
	return v.deps[scc]
}

// Dependents returns the components with edges into this component.
func (v *SccView) Dependents(scc SccID) []SccID {
	var out []SccID
	for from, targets := range v.deps {
		for _, to := range targets {
			if to == scc {
				out = append(out, SccID(from))
				break
			}
		}
	}
	return out
}

// TopoOrder returns the condensation in topological order.
func (v *SccView) TopoOrder() []SccID {
	return v.topoOrder
}

// SccCount returns the number of components.
func (v *SccView) SccCount() int {
	return len(v.members)
}

// SameComponent reports whether two nodes share a component.
func (v *SccView) SameComponent(a, b model.NodeID) bool {
	sa, oka := v.nodeToScc[a]
	sb, okb := v.nodeToScc[b]
	return oka && okb && sa == sb
}

// ToDot renders the condensation DAG.
func (v *SccView) ToDot() string {
	var b strings.Builder
	b.WriteString("digraph scc {\n")
	for i, members := range v.members {
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, NodeLabel(m))
		}
		fmt.Fprintf(&b, "  scc%d [label=%q];\n", i, strings.Join(names, "\\n"))
	}
	for from, targets := range v.deps {
		for _, to := range targets {
			fmt.Fprintf(&b, "  scc%d -> scc%d;\n", from, to)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// ComputeScc runs Tarjan's strongly-connected-components algorithm over the
// adjacency list, then builds the condensation DAG and its topological order
// with Kahn's algorithm.
func ComputeScc(adj *AdjacencyList) *SccView {
	nodes := adj.Nodes()

	state := &tarjanState{
		adj:      adj,
		index:    make(map[model.NodeID]int),
		lowlink:  make(map[model.NodeID]int),
		onStack:  make(map[model.NodeID]bool),
		nodeToScc: make(map[model.NodeID]SccID),
	}

	for _, n := range nodes {
		if _, visited := state.index[n]; !visited {
			state.strongconnect(n)
		}
	}

	view := &SccView{
		nodeToScc: state.nodeToScc,
		members:   state.sccs,
	}

	// Condensation: cross-component edges, deduplicated.
	depSets := make([]map[SccID]struct{}, len(view.members))
	for i := range depSets {
		depSets[i] = make(map[SccID]struct{})
	}
	for _, from := range nodes {
		fromScc := state.nodeToScc[from]
		for _, succ := range adj.Outgoing(from) {
			toScc := state.nodeToScc[succ.Node]
			if fromScc != toScc {
				depSets[fromScc][toScc] = struct{}{}
			}
		}
	}
	view.deps = make([][]SccID, len(view.members))
	for i, set := range depSets {
		for to := range set {
			view.deps[i] = append(view.deps[i], to)
		}
		sort.Slice(view.deps[i], func(a, b int) bool { return view.deps[i][a] < view.deps[i][b] })
	}

	view.topoOrder = kahnOrder(view.deps)
	return view
}

type tarjanState struct {
	adj       *AdjacencyList
	counter   int
	index     map[model.NodeID]int
	lowlink   map[model.NodeID]int
	stack     []model.NodeID
	onStack   map[model.NodeID]bool
	sccs      [][]model.NodeID
	nodeToScc map[model.NodeID]SccID
}

func (s *tarjanState) strongconnect(v model.NodeID) {
	s.index[v] = s.counter
	s.lowlink[v] = s.counter
	s.counter++
	s.stack = append(s.stack, v)
	s.onStack[v] = true

	for _, succ := range s.adj.Outgoing(v) {
		w := succ.Node
		if _, visited := s.index[w]; !visited {
			s.strongconnect(w)
			if s.lowlink[w] < s.lowlink[v] {
				s.lowlink[v] = s.lowlink[w]
			}
		} else if s.onStack[w] {
			if s.index[w] < s.lowlink[v] {
				s.lowlink[v] = s.index[w]
			}
		}
	}

	if s.lowlink[v] == s.index[v] {
		sccID := SccID(len(s.sccs))
		var members []model.NodeID
		for {
			w := s.stack[len(s.stack)-1]
			s.stack = s.stack[:len(s.stack)-1]
			s.onStack[w] = false
			s.nodeToScc[w] = sccID
			members = append(members, w)
			if w == v {
				break
			}
		}
		sortNodeIDs(members)
		s.sccs = append(s.sccs, members)
	}
}

// kahnOrder topologically sorts the condensation with an in-degree queue.
func kahnOrder(deps [][]SccID) []SccID {
	n := len(deps)
	inDegree := make([]int, n)
	for _, targets := range deps {
		for _, to := range targets {
			inDegree[to]++
		}
	}

	var queue []SccID
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			queue = append(queue, SccID(i))
		}
	}

	order := make([]SccID, 0, n)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, to := range deps[cur] {
			inDegree[to]--
			if inDegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	return order
}

// ExpansionToDot renders an expansion result, annotating depths.
func ExpansionToDot(result ExpansionResult, adj *AdjacencyList) string {
	inResult := make(map[model.NodeID]bool, len(result.Nodes))
	for _, n := range result.Nodes {
		inResult[n] = true
	}

	var b strings.Builder
	b.WriteString("digraph expansion {\n")
	for _, n := range result.Nodes {
		fmt.Fprintf(&b, "  %q [label=%q];\n",
			NodeLabel(n), fmt.Sprintf("%s (d=%d)", NodeLabel(n), result.Depths[n]))
	}
	for _, from := range result.Nodes {
		for _, succ := range adj.Outgoing(from) {
			if inResult[succ.Node] {
				fmt.Fprintf(&b, "  %q -> %q [label=%q];\n",
					NodeLabel(from), NodeLabel(succ.Node), labelName(succ.Label))
			}
		}
	}
	b.WriteString("}\n")
	return b.String()
}
