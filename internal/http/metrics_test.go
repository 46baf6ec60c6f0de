package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

type requestKey struct {
	endpoint string
	session  bool
}

func collectRequests(t *testing.T, reader *metric.ManualReader) (map[requestKey]int64, uint64) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	requests := map[requestKey]int64{}
	var durations uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "ragd.http.requests_total":
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					endpoint, _ := dp.Attributes.Value("endpoint")
					session, _ := dp.Attributes.Value(attribute.Key("session"))
					requests[requestKey{endpoint.AsString(), session.AsBool()}] += dp.Value
				}
			case "ragd.http.request_duration_seconds":
				hist, ok := m.Data.(metricdata.Histogram[float64])
				require.True(t, ok)
				for _, dp := range hist.DataPoints {
					durations += dp.Count
				}
			}
		}
	}
	return requests, durations
}

func TestRequestMetrics_Middleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := newRequestMetrics(mp.Meter(httpInstrumentationName), zap.NewNop())

	e := echo.New()
	e.Use(m.middleware())
	ok := func(c echo.Context) error { return c.NoContent(http.StatusAccepted) }
	e.GET(PathHealth, ok)
	e.GET(PathSSE, ok)
	e.POST(PathSSE, ok)
	e.POST(PathMCP, ok)
	e.DELETE(PathMCP, ok)

	send := func(method, target string, header http.Header) {
		req := httptest.NewRequest(method, target, nil)
		for k, v := range header {
			req.Header[k] = v
		}
		e.ServeHTTP(httptest.NewRecorder(), req)
	}
	send(http.MethodGet, "/health", nil)
	send(http.MethodGet, "/sse", nil)
	send(http.MethodPost, "/sse?sessionid=abc123", nil)
	send(http.MethodPost, "/sse?sessionid=def456", nil)
	send(http.MethodPost, "/mcp", nil)
	send(http.MethodPost, "/mcp", http.Header{headerMCPSession: {"s-1"}})
	send(http.MethodDelete, "/mcp", http.Header{headerMCPSession: {"s-1"}})
	send(http.MethodGet, "/missing", nil)

	requests, durations := collectRequests(t, reader)

	assert.Equal(t, int64(1), requests[requestKey{endpointHealth, false}])
	assert.Equal(t, int64(1), requests[requestKey{endpointSSEStream, false}])
	assert.Equal(t, int64(2), requests[requestKey{endpointSSEMessage, true}], "session posts share one series")
	assert.Equal(t, int64(1), requests[requestKey{endpointMCPMessage, false}])
	assert.Equal(t, int64(1), requests[requestKey{endpointMCPMessage, true}])
	assert.Equal(t, int64(1), requests[requestKey{endpointMCPClose, true}])
	assert.Equal(t, int64(1), requests[requestKey{endpointUnmatched, false}])
	assert.Equal(t, uint64(8), durations)

	for key := range requests {
		assert.NotContains(t, key.endpoint, "abc123")
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		route  string
		method string
		want   string
	}{
		{PathHealth, http.MethodGet, endpointHealth},
		{PathMetrics, http.MethodGet, endpointMetrics},
		{PathSSE, http.MethodGet, endpointSSEStream},
		{PathSSE, http.MethodPost, endpointSSEMessage},
		{PathMCP, http.MethodGet, endpointMCPStream},
		{PathMCP, http.MethodPost, endpointMCPMessage},
		{PathMCP, http.MethodDelete, endpointMCPClose},
		{"", http.MethodGet, endpointUnmatched},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.route, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			assert.Equal(t, tt.want, endpointLabel(tt.route, req))
		})
	}
}

func TestHasSession(t *testing.T) {
	assert.False(t, hasSession(httptest.NewRequest(http.MethodPost, "/sse", nil)))
	assert.True(t, hasSession(httptest.NewRequest(http.MethodPost, "/sse?sessionid=x", nil)))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set(headerMCPSession, "x")
	assert.True(t, hasSession(req))
}
