package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctxgraph/ctx/internal/graph"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/repo"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the knowledge graph",
}

// loadAdjacency materializes the whole graph from every edge batch reachable
// through the commit history.
func loadAdjacency(r *repo.Repo) (*graph.AdjacencyList, error) {
	entries, err := r.History(0)
	if err != nil {
		return nil, err
	}
	var batches []model.EdgeBatch
	for _, e := range entries {
		loaded, err := r.LoadEdgeBatches(e.Commit)
		if err != nil {
			return nil, err
		}
		batches = append(batches, loaded...)
	}
	return graph.FromEdgeBatches(batches), nil
}

var graphSccCmd = &cobra.Command{
	Use:   "scc",
	Short: "Compute strongly connected components",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		adj, err := loadAdjacency(r)
		if err != nil {
			return err
		}
		view := graph.ComputeScc(adj)

		fmt.Printf("%d node(s), %d edge(s), %d component(s)\n",
			adj.NodeCount(), adj.EdgeCount(), view.SccCount())
		for _, scc := range view.TopoOrder() {
			members := view.Members(scc)
			if len(members) > 1 {
				fmt.Printf("cycle of %d:\n", len(members))
				for _, m := range members {
					fmt.Printf("  %s\n", graph.NodeLabel(m))
				}
			}
		}
		return nil
	},
}

var graphDotCmd = &cobra.Command{
	Use:   "dot",
	Short: "Export the graph as DOT",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		adj, err := loadAdjacency(r)
		if err != nil {
			return err
		}
		fmt.Print(adj.ToDot())
		return nil
	},
}

func init() {
	graphCmd.AddCommand(graphSccCmd)
	graphCmd.AddCommand(graphDotCmd)
}
