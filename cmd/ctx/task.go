package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctxgraph/ctx/internal/repo"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage narrative task files",
}

var taskBody string

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a new task file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		info, err := r.Narrative().CreateTask(args[0], taskBody)
		if err != nil {
			return err
		}
		fmt.Printf("Created task #%04d at %s\n", info.ID, info.RelativePath)
		return nil
	},
}

var taskNote string

var taskUpdateCmd = &cobra.Command{
	Use:   "update <id> <status>",
	Short: "Update a task's status line, optionally appending a note",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid task id %q", args[0])
		}
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		path, err := r.Narrative().UpdateTask(id, args[1], taskNote)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s\n", path)
		return nil
	},
}

func init() {
	taskAddCmd.Flags().StringVar(&taskBody, "body", "", "task body text")
	taskUpdateCmd.Flags().StringVar(&taskNote, "note", "", "note to append")
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskUpdateCmd)
}
