package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/ragd/internal/http"

// Endpoint labels. MCP transports split into the long-lived stream and the
// per-message requests a session makes.
const (
	endpointHealth     = "health"
	endpointMetrics    = "metrics"
	endpointSSEStream  = "sse_stream"
	endpointSSEMessage = "sse_message"
	endpointMCPStream  = "mcp_stream"
	endpointMCPMessage = "mcp_message"
	endpointMCPClose   = "mcp_close"
	endpointUnmatched  = "unmatched"
)

// headerMCPSession carries the streamable transport's session id.
const headerMCPSession = "Mcp-Session-Id"

// requestMetrics counts requests per endpoint label and tracks how long they
// run. Stream endpoints stay open for a whole session, so their duration is
// the session length.
type requestMetrics struct {
	logger   *zap.Logger
	requests metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
}

func newRequestMetrics(meter metric.Meter, logger *zap.Logger) *requestMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &requestMetrics{logger: logger}

	var err error
	m.requests, err = meter.Int64Counter(
		"ragd.http.requests_total",
		metric.WithDescription("HTTP requests by endpoint (health, metrics, sse_stream, sse_message, mcp_stream, mcp_message, mcp_close), status and whether a session id was sent"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create requests counter", zap.Error(err))
	}

	m.duration, err = meter.Float64Histogram(
		"ragd.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration by endpoint. For *_stream endpoints this is the session length"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 10, 60, 300, 1800),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.active, err = meter.Int64UpDownCounter(
		"ragd.http.active_requests",
		metric.WithDescription("In-flight HTTP requests by endpoint. Open SSE and streamable sessions show up under their *_stream label"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create active requests counter", zap.Error(err))
	}
	return m
}

func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()
			endpoint := endpointLabel(c.Path(), req)
			endpointAttr := metric.WithAttributes(attribute.String("endpoint", endpoint))

			if m.active != nil {
				m.active.Add(ctx, 1, endpointAttr)
			}
			err := next(c)
			if m.active != nil {
				m.active.Add(ctx, -1, endpointAttr)
			}

			attrs := metric.WithAttributes(
				attribute.String("endpoint", endpoint),
				attribute.String("method", req.Method),
				attribute.Int("status", c.Response().Status),
				attribute.Bool("session", hasSession(req)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return err
		}
	}
}

// endpointLabel maps the matched route and method to a fixed label set.
// Query strings such as ?sessionid= never reach the label.
func endpointLabel(route string, r *http.Request) string {
	switch route {
	case PathHealth:
		return endpointHealth
	case PathMetrics:
		return endpointMetrics
	case PathSSE:
		if r.Method == http.MethodPost {
			return endpointSSEMessage
		}
		return endpointSSEStream
	case PathMCP:
		switch r.Method {
		case http.MethodGet:
			return endpointMCPStream
		case http.MethodDelete:
			return endpointMCPClose
		default:
			return endpointMCPMessage
		}
	default:
		return endpointUnmatched
	}
}

// hasSession reports whether the request belongs to an established MCP
// session: SSE posts carry ?sessionid=, streamable requests the header.
func hasSession(r *http.Request) bool {
	return r.URL.Query().Get("sessionid") != "" || r.Header.Get(headerMCPSession) != ""
}

func newDefaultRequestMetrics(logger *zap.Logger) *requestMetrics {
	return newRequestMetrics(otel.Meter(httpInstrumentationName), logger)
}
