package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctxgraph/ctx/internal/pack"
	"github.com/ctxgraph/ctx/internal/repo"
)

var (
	queryJSON        bool
	queryTokenBudget int
	queryReserve     int
	queryDepth       int
	queryMaxNodes    int
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Build a token-budgeted prompt pack for a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(repoDir)
		if err != nil {
			return err
		}
		defer r.Close()

		cfg := pack.DefaultRetrievalConfig()
		cfg.TokenBudget = queryTokenBudget
		cfg.ResponseReserve = queryReserve
		cfg.ExpansionDepth = queryDepth
		cfg.MaxExpandedNodes = queryMaxNodes

		p, err := r.BuildPack(args[0], cfg)
		if err != nil {
			return err
		}

		if queryJSON {
			out, err := p.ToJSON()
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		}
		fmt.Print(p.ToText())
		return nil
	},
}

func init() {
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "emit JSON instead of text")
	queryCmd.Flags().IntVar(&queryTokenBudget, "budget", 10000, "token budget")
	queryCmd.Flags().IntVar(&queryReserve, "reserve", 2000, "tokens reserved for the response")
	queryCmd.Flags().IntVar(&queryDepth, "depth", 2, "graph expansion depth")
	queryCmd.Flags().IntVar(&queryMaxNodes, "max-nodes", 50, "expansion node cap")
}
