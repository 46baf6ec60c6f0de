package embeddings

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIProvider_Validation(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Model: "text-embedding-3-small"})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test"})
	require.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", Model: "text-embedding-3-small"})
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimension())
	assert.NoError(t, p.Close())
}

func TestOpenAIProvider_EmbedQuery(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "text-embedding-3-small"})
	require.NoError(t, err)

	vec, err := p.EmbedQuery(context.Background(), "dentist")
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 0, 1}, vec)
	assert.Equal(t, "text-embedding-3-small", srv.model())
}

func TestOpenAIProvider_EmbedDocuments(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "text-embedding-3-small"})
	require.NoError(t, err)

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0, 1}, vecs[0])
	assert.Equal(t, []float32{3, 1, 1}, vecs[1])
}

func TestOpenAIProvider_EmptyInput(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", Model: "text-embedding-3-small"})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAIProvider_UpstreamFailureNotRetried(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	srv.status = http.StatusServiceUnavailable

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "text-embedding-3-small"})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "dentist")
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Equal(t, int32(1), srv.calls.Load())
}
