//go:build cgo

package vectorstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/sanitize"
)

func newTestSQLite(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(SQLiteConfig{Path: path, Table: "documents", Dimension: 3}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_InsertAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t, sanitize.MemoryPath)

	a, err := store.Insert(ctx, Row{Content: "a", Embedding: []float32{1, 0, 0}, Metadata: map[string]any{"source": "test"}})
	require.NoError(t, err)
	b, err := store.Insert(ctx, Row{Content: "b", Embedding: []float32{0, 1, 0}})
	require.NoError(t, err)
	assert.Equal(t, "1", a.ID)
	assert.Equal(t, "2", b.ID)

	matches, err := store.NearestNeighbors(ctx, []float32{1, 0, 0}, 5, Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, a.ID, matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].RawSimilarity, 1e-5)
	assert.InDelta(t, 0.0, matches[1].RawSimilarity, 1e-5)
	assert.Equal(t, "test", matches[0].Metadata["source"])

	// Vectors come back as vec_to_json text.
	assert.Nil(t, matches[0].Embedding)
	var vec []float32
	require.NoError(t, json.Unmarshal([]byte(matches[0].EncodedEmbedding), &vec))
	assert.Equal(t, []float32{1, 0, 0}, vec)
}

func TestSQLiteStore_NotesTableHoldsNoVector(t *testing.T) {
	store := newTestSQLite(t, sanitize.MemoryPath)

	rows, err := store.db.Query(`SELECT name FROM pragma_table_info('documents')`)
	require.NoError(t, err)
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		cols = append(cols, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"id", "content", "metadata"}, cols)
}

func TestSQLiteStore_Filter(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t, sanitize.MemoryPath)

	_, err := store.Insert(ctx, Row{Content: "a", Embedding: []float32{1, 0, 0}, Metadata: map[string]any{"source": "chat"}})
	require.NoError(t, err)
	b, err := store.Insert(ctx, Row{Content: "b", Embedding: []float32{0.9, 0.1, 0}, Metadata: map[string]any{"source": "test"}})
	require.NoError(t, err)

	matches, err := store.NearestNeighbors(ctx, []float32{1, 0, 0}, 5, Filter{Metadata: map[string]string{"source": "test"}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, b.ID, matches[0].ID)
}

func TestSQLiteStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t, filepath.Join(t.TempDir(), "notes.db"))

	row, err := store.Insert(ctx, Row{Content: "x", Embedding: []float32{0, 0, 1}})
	require.NoError(t, err)

	n, err := store.Delete(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.Delete(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = store.Delete(ctx, "not-a-number")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	matches, err := store.NearestNeighbors(ctx, []float32{0, 0, 1}, 5, Filter{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}
