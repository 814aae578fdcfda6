package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctxgraph/ctx/internal/index"
	"github.com/ctxgraph/ctx/internal/repo"
)

var rebuildSkipCorrupted bool

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the index from objects and refs",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		report, err := r.RebuildIndex(index.RebuildConfig{SkipCorrupted: rebuildSkipCorrupted})
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d commits, %d edges, %d paths\n",
			report.CommitsIndexed, report.EdgesIndexed, report.PathsIndexed)
		for _, s := range report.Skipped {
			logger.Warnf("skipped: %s", s)
		}
		return nil
	},
}

func init() {
	rebuildCmd.Flags().BoolVar(&rebuildSkipCorrupted, "skip-corrupted", false, "skip unreadable objects instead of aborting")
}
