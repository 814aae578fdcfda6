package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctxgraph/ctx/internal/repo"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new ctx repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Init(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		head, err := r.HeadID()
		if err != nil {
			return err
		}
		fmt.Printf("Initialized ctx repository at %s\n", r.CtxDir())
		fmt.Printf("Initial commit: %s\n", head.Short())
		return nil
	},
}
