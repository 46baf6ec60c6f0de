package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/retrieval"
)

// Notes is the engine surface the tools call.
type Notes interface {
	Search(ctx context.Context, query string, limit int) ([]retrieval.SearchResult, error)
	Add(ctx context.Context, content string, metadata map[string]any) (retrieval.StoredDocument, error)
	Delete(ctx context.Context, id any) (bool, error)
}

// Server exposes the note tools over MCP.
type Server struct {
	mcp     *mcp.Server
	notes   Notes
	metrics *Metrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the implementation name reported to clients (default: "ragd").
	Name string

	// Version is the implementation version (default: "dev").
	Version string

	Logger *zap.Logger

	// Metrics defaults to NewMetrics on the global meter provider.
	Metrics *Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ragd",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server with search_note, add_note and
// delete_note registered.
func NewServer(cfg *Config, notes Notes) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if notes == nil {
		return nil, errors.New("notes engine is required")
	}

	name, version := cfg.Name, cfg.Version
	if name == "" {
		name = "ragd"
	}
	if version == "" {
		version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(logger)
	}

	s := &Server{
		mcp:     mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		notes:   notes,
		metrics: metrics,
		logger:  logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Run serves MCP on stdin/stdout until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// SSEHandler serves the SSE transport. GET opens a session and POST
// delivers client messages to it.
func (s *Server) SSEHandler() http.Handler {
	return mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}

// StreamableHandler serves the streamable HTTP transport.
func (s *Server) StreamableHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}
