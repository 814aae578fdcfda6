package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/repo"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show commit history (first-parent walk from HEAD)",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		entries, err := r.History(logLimit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			ts := time.Unix(e.Commit.Timestamp, 0).UTC().Format(time.RFC3339)
			fmt.Printf("%s  %s  %s%s\n", e.ID.Short(), ts, e.Commit.Message, commitTypeSuffix(e.Commit.CommitType))
		}
		return nil
	},
}

func commitTypeSuffix(ct *model.CommitType) string {
	if ct == nil {
		return ""
	}
	switch ct.Kind {
	case model.CommitAbandoned:
		return "  [abandoned]"
	case model.CommitStaleAutoCompact:
		return fmt.Sprintf("  [auto-compacted after %ds idle]", ct.IdleSecs)
	case model.CommitInterruptedByNewTask:
		return fmt.Sprintf("  [interrupted by: %s]", ct.NewTaskSummary)
	default:
		return ""
	}
}

func init() {
	logCmd.Flags().IntVar(&logLimit, "limit", 20, "maximum commits to show (0 = all)")
}
