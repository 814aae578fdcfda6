package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ctxgraph/ctx/internal/repo"
	"github.com/ctxgraph/ctx/internal/verify"
)

var verifyObjects bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Audit repository integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		cfg := verify.DefaultConfig()
		cfg.CheckObjects = verifyObjects

		report, err := r.Verify(cfg)
		if err != nil {
			return err
		}
		fmt.Print(report.Summary())
		if report.HasIssues() {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyObjects, "objects", false, "verify every object's envelope and hash (slow)")
}
