package vectorstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSupabaseTestStore(t *testing.T, handler http.HandlerFunc) *SupabaseStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := NewSupabaseStore(SupabaseConfig{
		URL:        srv.URL,
		AnonKey:    "anon-key",
		Table:      "documents",
		HTTPClient: srv.Client(),
	}, nil)
	require.NoError(t, err)
	return store
}

func TestSupabaseStore_Insert(t *testing.T) {
	var got map[string]any
	store := newSupabaseTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/documents", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":42,"content":"hello","metadata":{"source":"test"},"embedding":"[1,0,0]"}]`))
	})

	row, err := store.Insert(context.Background(), Row{
		Content:   "hello",
		Embedding: []float32{1, 0, 0},
		Metadata:  map[string]any{"source": "test"},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", row.ID)

	assert.Equal(t, "hello", got["content"])
	assert.Equal(t, []any{float64(1), float64(0), float64(0)}, got["embedding"])
	assert.Equal(t, map[string]any{"source": "test"}, got["metadata"])
	assert.NotContains(t, got, "id", "the store assigns ids")
}

func TestSupabaseStore_InsertWithoutRepresentation(t *testing.T) {
	store := newSupabaseTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[]`))
	})

	row, err := store.Insert(context.Background(), Row{Content: "x", Embedding: []float32{1}})
	require.NoError(t, err)
	assert.Empty(t, row.ID)
}

func TestSupabaseStore_NearestNeighbors(t *testing.T) {
	store := newSupabaseTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/match_documents", r.URL.Path)
		assert.Empty(t, r.Header.Get("Prefer"))

		var req struct {
			QueryEmbedding []float32         `json:"query_embedding"`
			MatchCount     int               `json:"match_count"`
			Filter         map[string]string `json:"filter"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, req.QueryEmbedding)
		assert.Equal(t, 5, req.MatchCount)
		assert.NotNil(t, req.Filter)

		_, _ = w.Write([]byte(`[
			{"id":7,"content":"dentist","metadata":{"source":"test"},"embedding":"[0.1,0.2,0.3]","similarity":0.8},
			{"id":9,"content":"other","metadata":null,"embedding":[0.3,0.2,0.1],"similarity":0.2}
		]`))
	})

	matches, err := store.NearestNeighbors(context.Background(), []float32{0.1, 0.2, 0.3}, 5, Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "7", matches[0].ID)
	assert.Equal(t, "[0.1,0.2,0.3]", matches[0].EncodedEmbedding)
	assert.Nil(t, matches[0].Embedding)
	assert.InDelta(t, 0.8, matches[0].RawSimilarity, 1e-9)

	assert.Equal(t, []float32{0.3, 0.2, 0.1}, matches[1].Embedding)
	assert.NotNil(t, matches[1].Metadata)
}

func TestSupabaseStore_Delete(t *testing.T) {
	calls := 0
	store := newSupabaseTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "eq.638", r.URL.Query().Get("id"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		if calls == 1 {
			_, _ = w.Write([]byte(`[{"id":638,"content":"x","metadata":{}}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	n, err := store.Delete(context.Background(), "638")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.Delete(context.Background(), "638")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSupabaseStore_ErrorStatus(t *testing.T) {
	store := newSupabaseTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"permission denied"}`, http.StatusUnauthorized)
	})

	_, err := store.NearestNeighbors(context.Background(), []float32{1}, 1, Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "permission denied")
}

func TestSupabaseStore_InsertErrorStatus(t *testing.T) {
	store := newSupabaseTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value"}`))
	})

	_, err := store.Insert(context.Background(), Row{Content: "x", Embedding: []float32{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "duplicate key value")
}

func TestSupabaseStore_ContextCanceled(t *testing.T) {
	store := newSupabaseTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Delete(ctx, "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.NearestNeighbors(ctx, []float32{1}, 1, Filter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSupabaseStore_ConcurrentCalls(t *testing.T) {
	store := newSupabaseTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/v1/rpc/match_documents" {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[{"id":1,"content":"x","metadata":{}}]`))
	})

	// A failed RPC must not poison later calls.
	_, err := store.NearestNeighbors(context.Background(), []float32{1}, 1, Filter{})
	require.Error(t, err)

	n, err := store.Delete(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSupabaseConfig_Validate(t *testing.T) {
	base := SupabaseConfig{URL: "https://x.supabase.co", AnonKey: "k", Table: "documents", MatchFunction: "match_documents"}
	require.NoError(t, base.Validate())

	missingKey := base
	missingKey.AnonKey = ""
	assert.ErrorIs(t, missingKey.Validate(), ErrInvalidConfig)

	badTable := base
	badTable.Table = "documents?select=*"
	assert.ErrorIs(t, badTable.Validate(), ErrInvalidConfig)

	badFunc := base
	badFunc.MatchFunction = "match/../x"
	assert.ErrorIs(t, badFunc.Validate(), ErrInvalidConfig)
}
