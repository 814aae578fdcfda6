package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ctxgraph/ctx/internal/repo"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage work sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <task>",
	Short: "Start a new session for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		s, err := r.StartSession(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Started session %s\n", s.SessionID())
		return nil
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active session, recovering from STAGE if needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		s, err := r.RecoverSession()
		if err != nil {
			return err
		}
		if s == nil {
			fmt.Println("No active session")
			return nil
		}
		fmt.Print(s.ProgressSummary(r.Store()))

		stats := s.Stats(r.Store())
		fmt.Printf("\nObservations: %d reads, %d writes, %d commands, %d notes, %d plans\n",
			stats.FileReads, stats.FileWrites, stats.Commands, stats.Notes, stats.Plans)
		return nil
	},
}

var sessionRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover a crashed session from STAGE",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		s, err := r.RecoverSession()
		if err != nil {
			return err
		}
		if s == nil {
			fmt.Println("No session to recover")
			return nil
		}
		fmt.Printf("Recovered session %s (%d steps): %s\n",
			s.SessionID(), s.StepCount(), s.TaskDescription())
		return nil
	},
}

var (
	observeNote string
	observePlan string
)

var sessionObserveCmd = &cobra.Command{
	Use:   "observe",
	Short: "Record an observation into the recovered session and flush",
	RunE: func(cmd *cobra.Command, args []string) error {
		if observeNote == "" && observePlan == "" {
			return fmt.Errorf("nothing to observe: pass --note or --plan")
		}
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		if _, err := r.RecoverSession(); err != nil {
			return err
		}
		if observeNote != "" {
			if err := r.ObserveNote(observeNote); err != nil {
				return err
			}
		}
		if observePlan != "" {
			if err := r.ObservePlan(observePlan); err != nil {
				return err
			}
		}
		id, err := r.FlushActiveSession()
		if err != nil {
			return err
		}
		fmt.Printf("Flushed step %s\n", id.Short())
		return nil
	},
}

var sessionCompactCmd = &cobra.Command{
	Use:   "compact <message>",
	Short: "Compact the session into a canonical commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		if _, err := r.RecoverSession(); err != nil {
			return err
		}
		id, err := r.CompactSession(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Compacted to commit %s\n", id.Short())
		return nil
	},
}

var sessionAbortCmd = &cobra.Command{
	Use:   "abort <reason>",
	Short: "Abort the session, preserving the work as an abandoned commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		if _, err := r.RecoverSession(); err != nil {
			return err
		}
		id, err := r.AbortSession(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Session aborted; work preserved in commit %s\n", id.Short())
		return nil
	},
}

func init() {
	sessionObserveCmd.Flags().StringVar(&observeNote, "note", "", "record a note")
	sessionObserveCmd.Flags().StringVar(&observePlan, "plan", "", "record a plan")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionRecoverCmd)
	sessionCmd.AddCommand(sessionObserveCmd)
	sessionCmd.AddCommand(sessionCompactCmd)
	sessionCmd.AddCommand(sessionAbortCmd)
}
