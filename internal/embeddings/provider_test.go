package embeddings

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubProvider returns a fixed vector, or err when set.
type stubProvider struct {
	calls atomic.Int32
	err   error
}

func (s *stubProvider) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0, 0}, nil
}

func (s *stubProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (s *stubProvider) Dimension() int { return 3 }
func (s *stubProvider) Close() error   { return nil }

func TestNewProvider(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     ProviderConfig
		wantErr error
		wantDim int
	}{
		{
			name:    "openai",
			cfg:     ProviderConfig{Provider: ProviderOpenAI, Model: "text-embedding-3-large", APIKey: "sk-test"},
			wantDim: 3072,
		},
		{
			name:    "openai dimension override",
			cfg:     ProviderConfig{Provider: ProviderOpenAI, Model: "text-embedding-3-large", APIKey: "sk-test", Dimension: 256},
			wantDim: 256,
		},
		{
			name:    "openai without key",
			cfg:     ProviderConfig{Provider: ProviderOpenAI, Model: "text-embedding-3-small"},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "tei",
			cfg:     ProviderConfig{Provider: ProviderTEI, Model: "BAAI/bge-base-en-v1.5", BaseURL: "http://localhost:8080/v1"},
			wantDim: 768,
		},
		{
			name:    "tei without base URL",
			cfg:     ProviderConfig{Provider: ProviderTEI, Model: "BAAI/bge-small-en-v1.5"},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "missing model",
			cfg:     ProviderConfig{Provider: ProviderOpenAI, APIKey: "sk-test"},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "unknown provider",
			cfg:     ProviderConfig{Provider: "word2vec", Model: "x"},
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(ctx, tt.cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer p.Close()
			assert.Equal(t, tt.wantDim, p.Dimension())
		})
	}
}

func TestNewProvider_Wrappers(t *testing.T) {
	p, err := NewProvider(context.Background(), ProviderConfig{
		Provider:   ProviderOpenAI,
		Model:      "text-embedding-3-small",
		APIKey:     "sk-test",
		RateLimit:  10,
		Instrument: true,
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)

	inst, ok := p.(*Instrumented)
	require.True(t, ok, "expected instrumented provider, got %T", p)
	_, ok = inst.Provider.(*RateLimited)
	assert.True(t, ok, "expected rate limited provider inside, got %T", inst.Provider)
	assert.Equal(t, 1536, p.Dimension())
}

func TestDimensionForModel(t *testing.T) {
	known := map[string]int{
		"text-embedding-3-small":                 1536,
		"text-embedding-ada-002":                 1536,
		"text-embedding-3-large":                 3072,
		"BAAI/bge-small-en-v1.5":                 384,
		"BAAI/bge-base-en-v1.5":                  768,
		"BAAI/bge-large-en-v1.5":                 1024,
		"BAAI/bge-small-zh-v1.5":                 512,
		"sentence-transformers/all-MiniLM-L6-v2": 384,
	}
	for model, want := range known {
		dim, ok := DimensionForModel(model)
		assert.True(t, ok, model)
		assert.Equal(t, want, dim, model)
	}

	for _, model := range []string{"thenlper/gte-base", "intfloat/e5-large", "something-else"} {
		dim, ok := DimensionForModel(model)
		assert.False(t, ok, model)
		assert.Zero(t, dim, model)
	}
}

func TestNewProvider_MeasuresUnknownDimension(t *testing.T) {
	srv := newFakeEmbeddingServer(t)

	p, err := NewProvider(context.Background(), ProviderConfig{
		Provider: ProviderTEI,
		Model:    "thenlper/gte-base",
		BaseURL:  srv.URL + "/v1",
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 3, p.Dimension(), "width comes from the sample vector")
	assert.Equal(t, int32(1), srv.calls.Load())
	assert.Equal(t, "thenlper/gte-base", srv.model())
}

func TestNewProvider_ConfiguredDimensionSkipsMeasurement(t *testing.T) {
	srv := newFakeEmbeddingServer(t)

	p, err := NewProvider(context.Background(), ProviderConfig{
		Provider:  ProviderTEI,
		Model:     "thenlper/gte-base",
		BaseURL:   srv.URL + "/v1",
		Dimension: 768,
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 768, p.Dimension())
	assert.Zero(t, srv.calls.Load())
}

func TestNewProvider_MeasurementFailure(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	srv.status = http.StatusServiceUnavailable

	_, err := NewProvider(context.Background(), ProviderConfig{
		Provider: ProviderTEI,
		Model:    "intfloat/e5-large",
		BaseURL:  srv.URL + "/v1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "embeddings.dimension")
}

func TestRateLimited(t *testing.T) {
	stub := &stubProvider{}
	rl := NewRateLimited(stub, 1000, 0)
	ctx := context.Background()

	_, err := rl.EmbedQuery(ctx, "a")
	require.NoError(t, err)
	_, err = rl.EmbedDocuments(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.calls.Load())
	assert.Equal(t, 3, rl.Dimension())
}

func TestRateLimited_CancelledWhileWaiting(t *testing.T) {
	stub := &stubProvider{}
	rl := NewRateLimited(stub, 0.001, 1)

	_, err := rl.EmbedQuery(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rl.EmbedQuery(ctx, "second")
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestInstrumented_RecordsSpansAndMetrics(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	ctx := context.Background()

	metrics := newMetrics(tt.Meter(instrumentationName), zap.NewNop())
	inst := NewInstrumented(&stubProvider{}, "text-embedding-3-small", metrics, tt.Tracer(instrumentationName))

	_, err := inst.EmbedQuery(ctx, "dentist")
	require.NoError(t, err)
	_, err = inst.EmbedDocuments(ctx, []string{"a", "b"})
	require.NoError(t, err)

	tt.AssertSpanExists(t, "embeddings.query")
	tt.AssertSpanAttribute(t, "embeddings.query", "embedding.dimension", int64(3))
	tt.AssertSpanAttribute(t, "embeddings.documents", "embedding.batch_size", int64(2))

	names, err := tt.MetricNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "ragd.embedding.duration_seconds")
	assert.Contains(t, names, "ragd.embedding.batch_size")
}

func TestInstrumented_PropagatesErrors(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	boom := errors.New("boom")

	metrics := newMetrics(tt.Meter(instrumentationName), zap.NewNop())
	inst := NewInstrumented(&stubProvider{err: boom}, "m", metrics, tt.Tracer(instrumentationName))

	_, err := inst.EmbedQuery(context.Background(), "x")
	require.ErrorIs(t, err, boom)

	names, err := tt.MetricNames(context.Background())
	require.NoError(t, err)
	assert.Contains(t, names, "ragd.embedding.errors_total")
}
