package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctxgraph/ctx/internal/analyzer"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
	"github.com/ctxgraph/ctx/internal/repo"
)

var commitCmd = &cobra.Command{
	Use:   "commit <message>",
	Short: "Create a commit outside a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		id, err := r.Commit(args[0], nil, nil, repo.Snapshots{})
		if err != nil {
			return err
		}
		fmt.Printf("Created commit %s\n", id.Short())
		return nil
	},
}

var analyzeCargoCmd = &cobra.Command{
	Use:   "analyze-cargo",
	Short: "Run cargo metadata and commit the dependency graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		head, err := r.HeadID()
		if err != nil {
			return err
		}

		batch, err := analyzer.NewCargoAnalyzer().Produce(r.Root(), head)
		if err != nil {
			return err
		}

		snapshots := repo.Snapshots{}
		if len(batch.Snapshot) > 0 {
			snapID, err := r.Store().PutBlob(batch.Snapshot)
			if err != nil {
				return err
			}
			snapshots.Cargo = &snapID
		}

		edgeBatch := model.EdgeBatch{Edges: batch.Edges, CreatedAt: time.Now().Unix()}
		batchID, err := r.Store().PutTyped(edgeBatch)
		if err != nil {
			return err
		}

		id, err := r.Commit("Cargo dependency analysis", []objectid.ID{batchID}, nil, snapshots)
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d cargo edges in commit %s\n", len(batch.Edges), id.Short())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCargoCmd)
}
