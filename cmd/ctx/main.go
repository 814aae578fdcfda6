package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ctxgraph/ctx/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"

	verbose bool
	repoDir string
	logger  *logrus.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ctx",
	Short: "ctx - content-addressed context repository for coding agents",
	Long: `ctx records the work of coding agents as an auditable, reproducible
history: a content-addressed object store fused with a typed knowledge
graph, a crash-safe session machine, and a token-budgeted retrieval
pipeline.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logrus.New()
		level := logging.LevelInfo
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
			level = logging.LevelDebug
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}
		if err := logging.Init(logging.Options{Level: level}); err != nil {
			logger.WithError(err).Warn("Failed to initialize logging")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&repoDir, "dir", ".", "project root containing .ctx")

	rootCmd.SetVersionTemplate(`ctx {{.Version}}
Build time: ` + BuildTime + `
`)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(graphCmd)
}
