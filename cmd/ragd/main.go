// Ragd is the note retrieval daemon. It serves search_note, add_note and
// delete_note as MCP tools over SSE and streamable HTTP, or over stdio with
// --stdio.
//
// Configuration comes from the environment, a .env file and
// ~/.config/ragd/config.yaml. See internal/config for the keys.
//
// Usage:
//
//	# Serve HTTP on the configured port
//	ragd
//
//	# Serve MCP on stdin/stdout
//	ragd --stdio
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	stdio      bool
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ragd",
		Short: "Semantic note search served over MCP",
		Long: `ragd stores short text notes with their embeddings in a vector store and
serves search_note, add_note and delete_note as MCP tools.

Examples:
  # Serve SSE at /sse and streamable HTTP at /mcp
  PORT=9090 OPENAI_MODEL=text-embedding-3-small ragd

  # Serve MCP on stdin/stdout
  ragd --stdio`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.stdio, "stdio", false, "serve MCP on stdin/stdout instead of HTTP")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "YAML config file (default ~/.config/ragd/config.yaml)")
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "ragd\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}
