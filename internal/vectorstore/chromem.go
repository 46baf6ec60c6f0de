package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/sanitize"
)

var chromemTracer = otel.Tracer("ragd.vectorstore.chromem")

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the persistence directory. sanitize.MemoryPath keeps the
	// database in memory only.
	Path string

	// Collection holds the notes.
	Collection string

	// Compress enables gzip compression of persisted documents.
	Compress bool

	// Dimension is the expected embedding width.
	Dimension int
}

// Validate checks the configuration.
func (c ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if err := sanitize.ValidateTableName(c.Collection); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ChromemStore implements Store using chromem-go.
//
// chromem keeps metadata as map[string]string, so every value is stored
// JSON-encoded and decoded on the way out. Similarity is chromem's cosine
// similarity, which is already 1 - cosine_distance.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *zap.Logger
}

// NewChromemStore opens (or creates) the chromem database and collection.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := sanitize.StorePath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var db *chromem.DB
	if path == sanitize.MemoryPath {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}

	logger.Info("chromem store opened",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.Collection),
		zap.Int("documents", collection.Count()),
	)

	return &ChromemStore{
		db:         db,
		collection: collection,
		config:     config,
		logger:     logger,
	}, nil
}

// refuseEmbedding is handed to chromem so that a document or query without a
// precomputed vector fails loudly instead of calling out to OpenAI.
func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings are computed by the engine")
}

// Insert adds a row under a new UUID.
func (s *ChromemStore) Insert(ctx context.Context, row Row) (Row, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Insert")
	defer span.End()

	if len(row.Embedding) != s.config.Dimension {
		err := fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(row.Embedding), s.config.Dimension)
		span.SetStatus(codes.Error, err.Error())
		return Row{}, err
	}

	id := uuid.New().String()
	doc := chromem.Document{
		ID:        id,
		Content:   row.Content,
		Metadata:  encodeMetadata(row.Metadata),
		Embedding: row.Embedding,
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Row{}, fmt.Errorf("adding document to %s: %w", s.config.Collection, err)
	}

	span.SetAttributes(attribute.String("id", id))
	span.SetStatus(codes.Ok, "success")

	stored := row
	stored.ID = id
	return stored, nil
}

// Delete removes the document with id. A missing id affects zero rows.
func (s *ChromemStore) Delete(ctx context.Context, id string) (int, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	if _, err := s.collection.GetByID(ctx, id); err != nil {
		span.SetStatus(codes.Ok, "not found")
		return 0, nil
	}

	if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("deleting document %s: %w", id, err)
	}

	span.SetStatus(codes.Ok, "success")
	return 1, nil
}

// NearestNeighbors queries the collection with a precomputed vector.
func (s *ChromemStore) NearestNeighbors(ctx context.Context, vec []float32, k int, filter Filter) ([]Match, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.NearestNeighbors")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vec) != s.config.Dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.config.Dimension)
	}

	// chromem requires nResults <= document count
	count := s.collection.Count()
	if count == 0 {
		return []Match{}, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.QueryEmbedding(ctx, vec, k, encodeFilter(filter), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			Row: Row{
				ID:        r.ID,
				Content:   r.Content,
				Embedding: r.Embedding,
				Metadata:  decodeMetadata(r.Metadata),
			},
			RawSimilarity: float64(r.Similarity),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("searched chromem collection",
		zap.String("collection", s.config.Collection),
		zap.Int("k", k),
		zap.Int("results", len(matches)),
	)
	return matches, nil
}

// Close is a no-op; persistent chromem writes each document on insert.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

var _ Store = (*ChromemStore)(nil)
