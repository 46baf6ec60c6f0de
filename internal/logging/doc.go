// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Output to stdout, stderr and/or OpenTelemetry
//   - Automatic context fields (trace_id, span_id, request.id, tool)
//   - Secret redaction at the encoder
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithTool(ctx, "search_note")
//	logger.Info(ctx, "search completed", zap.Int("results", n))
//
// When ragd serves MCP over stdio, stdout carries the protocol stream and
// logs must go to stderr (Output.Stderr).
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "note added", zap.String("id", "1"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "note added")
//	tl.AssertField(t, "note added", "id", "1")
package logging
