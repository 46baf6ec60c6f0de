package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
)

var (
	// ErrInvalidConfig indicates the store configuration cannot be used.
	ErrInvalidConfig = errors.New("invalid vector store configuration")

	// ErrConnectionFailed indicates the backend could not be reached at startup.
	ErrConnectionFailed = errors.New("vector store connection failed")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// dimension the collection was created with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Row is one stored note as the backend sees it.
//
// On the way in, Embedding holds the vector and ID is empty. On the way out,
// ID is the store-assigned identifier and exactly one of Embedding or
// EncodedEmbedding is set, depending on how the backend returns vectors.
type Row struct {
	ID               string
	Content          string
	Embedding        []float32
	EncodedEmbedding string
	Metadata         map[string]any
}

// Match is a nearest-neighbor hit.
type Match struct {
	Row

	// RawSimilarity is 1 - cosine_distance between the query and the row.
	RawSimilarity float64
}

// Filter restricts a nearest-neighbor query to rows whose metadata has the
// given string values. The zero Filter matches every row.
type Filter struct {
	Metadata map[string]string
}

// IsEmpty reports whether the filter places no restriction.
func (f Filter) IsEmpty() bool {
	return len(f.Metadata) == 0
}

// Matches reports whether metadata satisfies the filter. Non-string values
// are compared by their JSON encoding.
func (f Filter) Matches(metadata map[string]any) bool {
	for k, want := range f.Metadata {
		v, ok := metadata[k]
		if !ok {
			return false
		}
		if s, isString := v.(string); isString {
			if s != want {
				return false
			}
			continue
		}
		if encodeValue(v) != want {
			return false
		}
	}
	return true
}

// Store is the narrow contract the retrieval engine needs from a vector
// database.
type Store interface {
	// Insert stores one row and returns it with its assigned ID.
	Insert(ctx context.Context, row Row) (Row, error)

	// Delete removes the row with id and reports how many rows were removed.
	Delete(ctx context.Context, id string) (int, error)

	// NearestNeighbors returns at most k rows ordered by similarity to vec.
	NearestNeighbors(ctx context.Context, vec []float32, k int, filter Filter) ([]Match, error)

	// Close releases the backend connection.
	Close() error
}

// New creates the store selected by cfg.Provider, wrapped with Prometheus
// instrumentation. dimension is the embedding width used when a collection
// or table has to be created.
func New(ctx context.Context, cfg config.StoreConfig, dimension int, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dimension)
	}

	var (
		store Store
		err   error
	)
	switch cfg.Provider {
	case config.StoreChromem:
		store, err = NewChromemStore(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Collection: cfg.Table,
			Compress:   cfg.Chromem.Compress,
			Dimension:  dimension,
		}, logger)
	case config.StoreQdrant:
		store, err = NewQdrantStore(ctx, QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Table,
			Dimension:  dimension,
		}, logger)
	case config.StoreMilvus:
		store, err = NewMilvusStore(ctx, MilvusConfig{
			Address:    cfg.Milvus.Address,
			APIKey:     cfg.Milvus.APIKey.Value(),
			Collection: cfg.Table,
			Dimension:  dimension,
		}, logger)
	case config.StoreSQLite:
		store, err = NewSQLiteStore(SQLiteConfig{
			Path:      cfg.SQLite.Path,
			Table:     cfg.Table,
			Dimension: dimension,
		}, logger)
	case config.StoreSupabase:
		store, err = NewSupabaseStore(SupabaseConfig{
			URL:           cfg.Supabase.URL,
			AnonKey:       cfg.Supabase.AnonKey.Value(),
			Table:         cfg.Table,
			MatchFunction: cfg.Supabase.MatchFunction,
			Timeout:       cfg.Supabase.Timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("vector store ready",
		zap.String("provider", cfg.Provider),
		zap.String("table", cfg.Table),
		zap.Int("dimension", dimension),
	)
	return NewInstrumented(store, cfg.Provider), nil
}
