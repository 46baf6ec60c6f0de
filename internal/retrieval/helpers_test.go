package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/sanitize"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// vocabulary gives the keyword embedder one dimension per word. The final
// dimension is a constant bias so no text embeds to the zero vector.
var vocabulary = []string{
	"dentist", "appointment", "checkup", "monday",
	"groceries", "milk", "eggs",
	"meeting", "quarterly", "report",
	"car", "oil", "tires",
	"birthday", "party", "cake",
}

// keywordEmbedder embeds text as word counts over vocabulary.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (k *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	k.mu.Lock()
	k.calls++
	k.mu.Unlock()
	if k.err != nil {
		return nil, k.err
	}

	vec := make([]float32, len(vocabulary)+1)
	vec[len(vocabulary)] = 0.05
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?")
		for i, v := range vocabulary {
			if word == v {
				vec[i]++
			}
		}
	}
	return vec, nil
}

func (k *keywordEmbedder) Calls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls
}

// fakeStore is a scripted vectorstore.Store.
type fakeStore struct {
	matches   []vectorstore.Match
	insertID  string
	deleted   int
	err       error
	inserted  []vectorstore.Row
	searches  int
	lastK     int
	deleteIDs []string
}

func (f *fakeStore) Insert(_ context.Context, row vectorstore.Row) (vectorstore.Row, error) {
	if f.err != nil {
		return vectorstore.Row{}, f.err
	}
	f.inserted = append(f.inserted, row)
	row.ID = f.insertID
	return row, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) (int, error) {
	f.deleteIDs = append(f.deleteIDs, id)
	if f.err != nil {
		return 0, f.err
	}
	return f.deleted, nil
}

func (f *fakeStore) NearestNeighbors(_ context.Context, _ []float32, k int, _ vectorstore.Filter) ([]vectorstore.Match, error) {
	f.searches++
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func (f *fakeStore) Close() error { return nil }

var errBackend = errors.New("backend down")

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)

func newTestEngine(t *testing.T, embedder Embedder, store vectorstore.Store, logger *logging.Logger) *Engine {
	t.Helper()
	e, err := New(Config{
		Model:        "text-embedding-3-small",
		Dimension:    len(vocabulary) + 1,
		DefaultLimit: 5,
	}, embedder, store, logger,
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	return e
}

// newChromemEngine wires the engine to an in-memory chromem store.
func newChromemEngine(t *testing.T) (*Engine, *keywordEmbedder) {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       sanitize.MemoryPath,
		Collection: "documents",
		Dimension:  len(vocabulary) + 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	embedder := &keywordEmbedder{}
	return newTestEngine(t, embedder, store, nil), embedder
}
