package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// errToolFailed is returned when the server answers a call with IsError.
var errToolFailed = errors.New("tool call failed")

// connect opens an MCP session to the server's SSE endpoint.
func connect(ctx context.Context, serverURL string) (*mcp.ClientSession, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "ragctl", Version: version}, nil)
	endpoint := strings.TrimRight(serverURL, "/") + "/sse"

	cs, err := client.Connect(ctx, &mcp.SSEClientTransport{Endpoint: endpoint}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	return cs, nil
}

// callTool calls name and returns the text payload of the result.
func callTool(ctx context.Context, cs *mcp.ClientSession, name string, args map[string]any) (string, error) {
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}

	var b strings.Builder
	for _, c := range res.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	if res.IsError {
		return "", fmt.Errorf("%w: %s: %s", errToolFailed, name, b.String())
	}
	return b.String(), nil
}

// printJSON indents payload when it is JSON and prints it as-is otherwise.
func printJSON(w io.Writer, payload string) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(payload), "", "  "); err != nil {
		fmt.Fprintln(w, payload)
		return
	}
	fmt.Fprintln(w, buf.String())
}

// withSession runs fn with a connected session bounded by opts.timeout.
func withSession(ctx context.Context, opts *options, fn func(context.Context, *mcp.ClientSession) error) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	cs, err := connect(ctx, opts.serverURL)
	if err != nil {
		return err
	}
	defer cs.Close()

	return fn(ctx, cs)
}
