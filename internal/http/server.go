// Package http serves the MCP transports, health and Prometheus metrics
// over labstack/echo.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// Route paths.
const (
	PathHealth  = "/health"
	PathMetrics = "/metrics"
	PathSSE     = "/sse"
	PathMCP     = "/mcp"
)

// MCPHandlers provides the MCP transport handlers mounted by the server.
type MCPHandlers interface {
	SSEHandler() http.Handler
	StreamableHandler() http.Handler
}

// Server provides the HTTP endpoints for ragd.
type Server struct {
	echo    *echo.Echo
	logger  *zap.Logger
	config  *Config
	metrics *requestMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// ShutdownTimeout bounds Shutdown when the caller's context has no
	// deadline (default: 10s).
	ShutdownTimeout time.Duration

	// Gatherer backs /metrics (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer
}

// NewServer creates the HTTP server. mcpHandlers may be nil, in which case
// only health and metrics are served.
func NewServer(mcpHandlers MCPHandlers, logger *zap.Logger, cfg *Config) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		logger:  logger,
		config:  cfg,
		metrics: newDefaultRequestMetrics(logger),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestContext())
	e.Use(s.requestLogger())
	e.Use(s.metrics.middleware())

	s.registerRoutes(mcpHandlers)
	return s, nil
}

func (s *Server) registerRoutes(mcpHandlers MCPHandlers) {
	s.echo.GET(PathHealth, s.handleHealth)
	s.echo.GET(PathMetrics, echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))

	if mcpHandlers == nil {
		return
	}

	sse := echo.WrapHandler(mcpHandlers.SSEHandler())
	s.echo.GET(PathSSE, sse)
	s.echo.POST(PathSSE, sse)

	streamable := echo.WrapHandler(mcpHandlers.StreamableHandler())
	s.echo.GET(PathMCP, streamable)
	s.echo.POST(PathMCP, streamable)
	s.echo.DELETE(PathMCP, streamable)
}

// requestContext copies the echo request id into the request context so
// downstream loggers pick it up.
func (s *Server) requestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
			}
			return next(c)
		}
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			s.logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start listens on the configured address. It returns nil after a graceful
// Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.Addr()))
	if err := s.echo.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting at most ShutdownTimeout
// unless ctx ends first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
