package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	tools "github.com/fyrsmithlabs/ragd/internal/mcp"
)

// Smoke test fixtures.
const (
	smokeDeleteID = 638
	smokeContent  = "I need to visit the dentist next week for a checkup. The appointment is scheduled for Monday at 2 PM."
	smokeQuery    = "dentist"
	smokeLimit    = 5
)

func newSearchCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search notes by similarity",
		Long: `Search notes by semantic similarity and print the results as JSON.

Examples:
  ragctl search dentist
  ragctl search "quarterly report" --limit 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, func(ctx context.Context, cs *mcp.ClientSession) error {
				text, err := callTool(ctx, cs, tools.ToolSearchNote, searchArgs(strings.Join(args, " "), limit))
				if err != nil {
					return err
				}
				printJSON(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (0 uses the server default)")
	return cmd
}

func newAddCmd(opts *options) *cobra.Command {
	var meta map[string]string
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Add a note",
		Long: `Add a note. Metadata given with --meta overrides the generated defaults.

Examples:
  ragctl add "Buy milk and eggs"
  ragctl add "Dentist on Monday" --meta source=test --meta file_id=test1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, func(ctx context.Context, cs *mcp.ClientSession) error {
				text, err := callTool(ctx, cs, tools.ToolAddNote, addArgs(strings.Join(args, " "), meta))
				if err != nil {
					return err
				}
				printJSON(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "metadata key=value (repeatable)")
	return cmd
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, func(ctx context.Context, cs *mcp.ClientSession) error {
				text, err := callTool(ctx, cs, tools.ToolDeleteNote, deleteArgs(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
}

func newToolsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the server's tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, func(ctx context.Context, cs *mcp.ClientSession) error {
				res, err := cs.ListTools(ctx, nil)
				if err != nil {
					return fmt.Errorf("list tools: %w", err)
				}
				for _, tool := range res.Tools {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", tool.Name, tool.Description)
				}
				return nil
			})
		},
	}
}

func newSmokeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "smoke",
		Short: "Delete, add and search a known note",
		Long: `Replay the server smoke test: delete note 638, add the dentist note with
metadata {source: test, file_id: test1}, then search for "dentist".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, func(ctx context.Context, cs *mcp.ClientSession) error {
				return runSmoke(ctx, cs, cmd.OutOrStdout())
			})
		},
	}
}

func runSmoke(ctx context.Context, cs *mcp.ClientSession, w io.Writer) error {
	deleted, err := callTool(ctx, cs, tools.ToolDeleteNote, map[string]any{"note_id": smokeDeleteID})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Delete result: %s\n", deleted)

	added, err := callTool(ctx, cs, tools.ToolAddNote, addArgs(smokeContent, map[string]string{
		"source":  "test",
		"file_id": "test1",
	}))
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Add result:")
	printJSON(w, added)

	found, err := callTool(ctx, cs, tools.ToolSearchNote, searchArgs(smokeQuery, smokeLimit))
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Search result:")
	printJSON(w, found)
	return nil
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check ragd server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

// HealthResponse matches the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func runHealth(ctx context.Context, opts *options, w io.Writer) error {
	url := strings.TrimRight(opts.serverURL, "/") + "/health"

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintf(w, "Server Status: %s\n", health.Status)
	fmt.Fprintf(w, "Server URL: %s\n", opts.serverURL)
	return nil
}

func searchArgs(query string, limit int) map[string]any {
	args := map[string]any{"query": query}
	if limit > 0 {
		args["limit"] = limit
	}
	return args
}

func addArgs(content string, meta map[string]string) map[string]any {
	args := map[string]any{"content": content}
	if len(meta) > 0 {
		md := make(map[string]any, len(meta))
		for k, v := range meta {
			md[k] = v
		}
		args["metadata"] = md
	}
	return args
}

// deleteArgs sends integer-looking ids as numbers for stores with integer keys.
func deleteArgs(id string) map[string]any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return map[string]any{"note_id": n}
	}
	return map[string]any{"note_id": id}
}
