package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// previewLength is how many characters of each hit's content are logged.
const previewLength = 100

// Embedder turns text into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config holds the engine settings that do not come from collaborators.
type Config struct {
	// Model is the embedding model name recorded in processing_info.
	Model string

	// Dimension is the embedding width recorded in processing_info. Zero
	// records the length of each generated vector instead.
	Dimension int

	// DefaultLimit is used when a search asks for limit 0.
	DefaultLimit int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFileIDGenerator replaces the random UUID used for file_id.
func WithFileIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newFileID = gen }
}

// Engine implements search, add and delete over an embedder and a store.
type Engine struct {
	embedder  Embedder
	store     vectorstore.Store
	logger    *logging.Logger
	config    Config
	now       func() time.Time
	newFileID func() string
}

// New creates an Engine.
func New(cfg Config, embedder Embedder, store vectorstore.Store, logger *logging.Logger, opts ...Option) (*Engine, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.DefaultLimit <= 0 {
		return nil, fmt.Errorf("default limit must be positive, got %d", cfg.DefaultLimit)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	e := &Engine{
		embedder:  embedder,
		store:     store,
		logger:    logger.Named("retrieval"),
		config:    cfg,
		now:       time.Now,
		newFileID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DefaultLimit returns the limit used when a search passes 0.
func (e *Engine) DefaultLimit() int {
	return e.config.DefaultLimit
}

// Search returns up to limit notes ordered by descending similarity to
// query. A limit of 0 selects the configured default.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrValidation)
	}
	if limit == 0 {
		limit = e.config.DefaultLimit
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrValidation, limit)
	}

	e.logger.Info(ctx, "searching notes", zap.String("query", query), zap.Int("limit", limit))

	vec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", ErrEmbeddingUnavailable, err)
	}
	e.logger.Debug(ctx, "generated query embedding", zap.Int("length", len(vec)))

	matches, err := e.store.NearestNeighbors(ctx, vec, limit, vectorstore.Filter{})
	if err != nil {
		return nil, fmt.Errorf("%w: nearest neighbors: %w", ErrStoreUnavailable, err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, SearchResult{
			StoredDocument: e.toDocument(ctx, m.Row),
			Similarity:     Rescale(m.RawSimilarity),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > limit {
		results = results[:limit]
	}

	for _, r := range results {
		e.logger.Info(ctx, "found note",
			zap.String("id", r.ID),
			zap.String("similarity", fmt.Sprintf("%.3f", r.Similarity)),
			zap.String("preview", preview(r.Content)),
		)
	}
	return results, nil
}

// Add embeds content and stores it with default metadata overlaid by the
// caller's metadata.
func (e *Engine) Add(ctx context.Context, content string, metadata map[string]any) (StoredDocument, error) {
	if strings.TrimSpace(content) == "" {
		return StoredDocument{}, fmt.Errorf("%w: content is empty", ErrValidation)
	}

	vec, err := e.embedder.EmbedQuery(ctx, content)
	if err != nil {
		return StoredDocument{}, fmt.Errorf("%w: embedding content: %w", ErrEmbeddingUnavailable, err)
	}

	dim := e.config.Dimension
	if dim == 0 {
		dim = len(vec)
	}
	merged := MergeMetadata(
		DefaultMetadata(content, e.config.Model, dim, e.now(), e.newFileID()),
		metadata,
	)

	row, err := e.store.Insert(ctx, vectorstore.Row{
		Content:   content,
		Embedding: vec,
		Metadata:  merged,
	})
	if err != nil {
		return StoredDocument{}, fmt.Errorf("%w: insert: %w", ErrStoreUnavailable, err)
	}
	if row.ID == "" {
		return StoredDocument{}, fmt.Errorf("%w: store returned no id", ErrInsertFailed)
	}

	e.logger.Info(ctx, "added note",
		zap.String("id", row.ID),
		zap.Int("content_length", len(content)),
	)

	return StoredDocument{
		ID:        row.ID,
		Content:   content,
		Embedding: Embedding(vec),
		Metadata:  merged,
	}, nil
}

// Delete removes the note with id. It reports false, not an error, when no
// such note exists.
func (e *Engine) Delete(ctx context.Context, id any) (bool, error) {
	canonical, err := NormalizeID(id)
	if err != nil {
		return false, err
	}

	n, err := e.store.Delete(ctx, canonical)
	if err != nil {
		return false, fmt.Errorf("%w: delete %s: %w", ErrStoreUnavailable, canonical, err)
	}

	e.logger.Info(ctx, "deleted note", zap.String("id", canonical), zap.Bool("deleted", n > 0))
	return n > 0, nil
}

// toDocument maps a store row, decoding a text-encoded embedding. A row whose
// embedding cannot be decoded is kept with a nil embedding.
func (e *Engine) toDocument(ctx context.Context, row vectorstore.Row) StoredDocument {
	doc := StoredDocument{
		ID:       row.ID,
		Content:  row.Content,
		Metadata: row.Metadata,
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	switch {
	case row.Embedding != nil:
		doc.Embedding = Embedding(row.Embedding)
	case row.EncodedEmbedding != "":
		vec, err := ParseEmbedding(row.EncodedEmbedding)
		if err != nil {
			e.logger.Warn(ctx, "dropping unparseable embedding", zap.String("id", row.ID), zap.Error(err))
		} else {
			doc.Embedding = vec
		}
	}
	return doc
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:previewLength]) + "..."
}
