// Package main implements ragctl, a command-line MCP client for ragd.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options are shared by every subcommand.
type options struct {
	serverURL string
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ragctl",
		Short: "CLI for the ragd note tools",
		Long: `ragctl talks to a running ragd over the MCP SSE transport. It can search,
add and delete notes, list the server's tools, check health, and replay a
delete/add/search smoke test.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.serverURL, "server", "http://localhost:9090", "ragd server URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-command timeout")

	root.AddCommand(
		newSearchCmd(opts),
		newAddCmd(opts),
		newDeleteCmd(opts),
		newToolsCmd(opts),
		newHealthCmd(opts),
		newSmokeCmd(opts),
	)
	return root
}
