// Package telemetry wires OpenTelemetry tracing and metrics for ragd.
//
// Telemetry is off unless observability.enable_telemetry is set. When
// enabled, spans and metrics are exported over OTLP (grpc or
// http/protobuf) to a collector. Failures while building exporters do not
// stop the server: the instance is marked degraded and the global no-op
// providers stay in place.
//
//	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	tracer := tel.Tracer("ragd.retrieval")
//	ctx, span := tracer.Start(ctx, "embeddings.query")
//	defer span.End()
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
