package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctxgraph/ctx/internal/gc"
	"github.com/ctxgraph/ctx/internal/repo"
)

var (
	gcDryRun     bool
	gcAggressive bool
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage-collect unreachable objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		report, err := r.Gc(gc.Config{
			GracePeriodDays: r.Config().Gc.GracePeriodDays,
			Aggressive:      gcAggressive,
			DryRun:          gcDryRun,
		})
		if err != nil {
			return err
		}

		verb := "deleted"
		if gcDryRun {
			verb = "would delete"
		}
		fmt.Printf("Scanned %d objects, %d reachable; %s %d (%d bytes)\n",
			report.ObjectsScanned, report.ObjectsReachable, verb,
			report.ObjectsDeleted, report.BytesFreed)
		for _, e := range report.Errors {
			logger.Warnf("delete failed: %s", e)
		}
		return nil
	},
}

func init() {
	gcCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "count without deleting")
	gcCmd.Flags().BoolVar(&gcAggressive, "aggressive", false, "no grace period")
}
