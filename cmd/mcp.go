package cmd

import (
	"github.com/spf13/cobra"

	"github.com/get-convex/crev/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding agents query the component directory and drive reviews
natively. Configure with:

  {
    "mcpServers": {
      "crev": { "command": "crev", "args": ["mcp"] }
    }
  }

Available tools: crev_list_packages, crev_package_status, crev_run_review,
crev_review_result, crev_add_note, crev_set_status, crev_set_policy`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		srv := mcp.NewServer(s, newRunner(s))
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
