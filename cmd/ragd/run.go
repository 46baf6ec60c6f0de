package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/mcp"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// run loads configuration, wires the engine and serves until ctx is
// cancelled.
//
// Startup order:
//  1. Load and validate configuration (missing required settings are fatal)
//  2. Telemetry, then the logger
//  3. Embedding provider, then the vector store sized to its dimension
//  4. Retrieval engine and MCP tools
//  5. stdio transport, or the HTTP server until shutdown
func run(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	logger, err := initLogger(cfg, opts.stdio)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting ragd",
		zap.String("version", version),
		zap.Bool("stdio", opts.stdio),
		zap.String("store", cfg.Store.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("model", cfg.Embeddings.Model),
	)
	if health := tel.Health(); health.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("failures", health.Failures))
	}

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	tools, err := mcp.NewServer(&mcp.Config{
		Name:    "ragd",
		Version: version,
		Logger:  logger.Named("mcp").Underlying(),
	}, deps.engine)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if opts.stdio {
		fmt.Fprintf(os.Stderr, "ragd stdio mode started\n")
		return tools.Run(ctx)
	}
	return serveHTTP(ctx, cfg, tools, logger)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	if _, err := config.LoadEnvFile(); err != nil {
		return nil, err
	}
	return config.LoadWithFile(path)
}

// initLogger builds the process logger. In stdio mode logs go to stderr so
// stdout carries only MCP frames.
func initLogger(cfg *config.Config, stdio bool) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if err := logCfg.ApplyLevel(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, err
	}
	logCfg.Output.OTEL = cfg.Observability.EnableTelemetry
	if stdio {
		logCfg = logCfg.ForStdio()
	}
	return logging.NewLogger(logCfg, global.GetLoggerProvider())
}

// dependencies holds what the engine is built from.
type dependencies struct {
	embedder embeddings.Provider
	store    vectorstore.Store
	engine   *retrieval.Engine
	logger   *logging.Logger
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	embedder, err := embeddings.NewProvider(ctx, embeddings.ProviderConfig{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		BaseURL:    cfg.Embeddings.BaseURL,
		APIKey:     cfg.Embeddings.APIKey.Value(),
		Dimension:  cfg.Embeddings.Dimension,
		CacheDir:   cfg.Embeddings.CacheDir,
		RateLimit:  cfg.Embeddings.RateLimit,
		Burst:      cfg.Embeddings.Burst,
		Instrument: true,
		Logger:     logger.Named("embeddings").Underlying(),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	logger.Info(ctx, "embedding provider initialized",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.String("model", cfg.Embeddings.Model),
		zap.Int("dimension", embedder.Dimension()),
		logging.Secret("api_key", cfg.Embeddings.APIKey))

	store, err := vectorstore.New(ctx, cfg.Store, embedder.Dimension(), logger.Named("vectorstore").Underlying())
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("vector store: %w", err)
	}

	engine, err := retrieval.New(retrieval.Config{
		Model:        cfg.Embeddings.Model,
		Dimension:    embedder.Dimension(),
		DefaultLimit: cfg.Search.DefaultLimit,
	}, embedder, store, logger)
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("retrieval engine: %w", err)
	}

	return &dependencies{
		embedder: embedder,
		store:    store,
		engine:   engine,
		logger:   logger,
	}, nil
}

// Close releases the store and the embedding provider.
func (d *dependencies) Close() {
	var errs []error
	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("vector store close: %w", err))
	}
	if err := d.embedder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("embedding provider close: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		d.logger.Warn(context.Background(), "close errors", zap.Error(err))
	}
}

// serveHTTP runs the HTTP server until ctx is cancelled, then shuts it down
// within the configured timeout.
func serveHTTP(ctx context.Context, cfg *config.Config, tools *mcp.Server, logger *logging.Logger) error {
	srv, err := httpserver.NewServer(tools, logger.Named("http").Underlying(), &httpserver.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	logger.Info(ctx, "server configured",
		zap.String("addr", srv.Addr()),
		zap.String("sse_endpoint", httpserver.PathSSE),
		zap.String("mcp_endpoint", httpserver.PathMCP),
		zap.String("metrics_endpoint", httpserver.PathMetrics))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutdown signal received")
	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info(context.Background(), "server shutdown complete")
	return nil
}
