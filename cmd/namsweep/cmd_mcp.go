package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/namsweep/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve sweep documents to MCP clients over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout. Tools:

  sweep_validate   validate a document and list offending field paths
  sweep_summarize  per-experiment keys, grid shape and run counts
  sweep_expand     page through the expanded runs of a document
  sweep_plans      list plans recorded by create

Documents must lie inside the project root. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			rootAbs, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("failed to resolve project root: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "namsweep",
				Version: version,
				Root:    rootAbs,
				Seed:    cfg.Plan.Seed,
				Logger:  newLogger(cmd, cfg),
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			return server.Run(cmd.Context())
		},
	}
}
