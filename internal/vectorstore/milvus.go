package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/sanitize"
)

// Milvus field names.
const (
	milvusFieldID       = "id"
	milvusFieldContent  = "content"
	milvusFieldMetadata = "metadata"
	milvusFieldVector   = "vector"
)

// MilvusConfig configures the Milvus store.
type MilvusConfig struct {
	Address    string
	APIKey     string
	Collection string
	Dimension  int
}

// Validate checks the configuration.
func (c MilvusConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if err := sanitize.ValidateTableName(c.Collection); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// MilvusStore implements Store using the Milvus v2 client.
//
// The collection has a VarChar primary key, a VarChar content field, a JSON
// metadata field and a float vector indexed with HNSW under the COSINE
// metric, whose score is cosine similarity.
type MilvusStore struct {
	client *milvusclient.Client
	config MilvusConfig
	logger *zap.Logger
}

// NewMilvusStore connects to Milvus and ensures the collection is created,
// indexed and loaded.
func NewMilvusStore(ctx context.Context, config MilvusConfig, logger *zap.Logger) (*MilvusStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: config.Address,
		APIKey:  config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &MilvusStore{client: client, config: config, logger: logger}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	return store, nil
}

func (s *MilvusStore) ensureCollection(ctx context.Context) error {
	name := s.config.Collection

	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %v", ErrConnectionFailed, name, err)
	}

	if !exists {
		schema := &entity.Schema{
			CollectionName: name,
			Description:    "ragd notes",
			Fields: []*entity.Field{
				{
					Name:       milvusFieldID,
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{"max_length": "64"},
				},
				{
					Name:       milvusFieldContent,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "65535"},
				},
				{
					Name:     milvusFieldMetadata,
					DataType: entity.FieldTypeJSON,
				},
				{
					Name:       milvusFieldVector,
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{"dim": strconv.Itoa(s.config.Dimension)},
				},
			},
		}

		if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
			return fmt.Errorf("creating collection %s: %w", name, err)
		}

		idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
		task, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, milvusFieldVector, idx))
		if err != nil {
			return fmt.Errorf("creating index on %s: %w", name, err)
		}
		if err := task.Await(ctx); err != nil {
			return fmt.Errorf("waiting for index on %s: %w", name, err)
		}

		s.logger.Info("created milvus collection",
			zap.String("collection", name),
			zap.Int("dimension", s.config.Dimension),
		)
	}

	// Loading an already loaded collection is a no-op.
	load, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("loading collection %s: %w", name, err)
	}
	if err := load.Await(ctx); err != nil {
		return fmt.Errorf("waiting for collection %s to load: %w", name, err)
	}
	return nil
}

// Insert writes one row under a new UUID.
func (s *MilvusStore) Insert(ctx context.Context, row Row) (Row, error) {
	if len(row.Embedding) != s.config.Dimension {
		return Row{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(row.Embedding), s.config.Dimension)
	}

	metadata := row.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return Row{}, fmt.Errorf("encoding metadata: %w", err)
	}

	id := uuid.New().String()
	_, err = s.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(s.config.Collection,
		column.NewColumnVarChar(milvusFieldID, []string{id}),
		column.NewColumnVarChar(milvusFieldContent, []string{row.Content}),
		column.NewColumnJSONBytes(milvusFieldMetadata, [][]byte{metaJSON}),
		column.NewColumnFloatVector(milvusFieldVector, s.config.Dimension, [][]float32{row.Embedding}),
	))
	if err != nil {
		return Row{}, fmt.Errorf("inserting into %s: %w", s.config.Collection, err)
	}

	stored := row
	stored.ID = id
	return stored, nil
}

// Delete checks that the primary key exists and then deletes it.
func (s *MilvusStore) Delete(ctx context.Context, id string) (int, error) {
	expr := fmt.Sprintf("%s == %s", milvusFieldID, strconv.Quote(id))

	result, err := s.client.Query(ctx, milvusclient.NewQueryOption(s.config.Collection).
		WithFilter(expr).
		WithOutputFields(milvusFieldID).
		WithLimit(1).
		WithConsistencyLevel(entity.ClStrong))
	if err != nil {
		return 0, fmt.Errorf("querying %s for %s: %w", s.config.Collection, id, err)
	}
	if result.ResultCount == 0 {
		return 0, nil
	}

	if _, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.config.Collection).
		WithStringIDs(milvusFieldID, []string{id})); err != nil {
		return 0, fmt.Errorf("deleting %s from %s: %w", id, s.config.Collection, err)
	}
	return 1, nil
}

// NearestNeighbors runs an ANN search on the vector field.
func (s *MilvusStore) NearestNeighbors(ctx context.Context, vec []float32, k int, filter Filter) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	opt := milvusclient.NewSearchOption(s.config.Collection, k, []entity.Vector{entity.FloatVector(vec)}).
		WithANNSField(milvusFieldVector).
		WithOutputFields(milvusFieldContent, milvusFieldMetadata, milvusFieldVector).
		WithConsistencyLevel(entity.ClStrong)
	if expr := milvusFilter(filter); expr != "" {
		opt = opt.WithFilter(expr)
	}

	sets, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", s.config.Collection, err)
	}
	if len(sets) == 0 {
		return []Match{}, nil
	}

	rs := sets[0]
	contents := rs.GetColumn(milvusFieldContent)
	metas := rs.GetColumn(milvusFieldMetadata)
	vectors := rs.GetColumn(milvusFieldVector)

	matches := make([]Match, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		m := Match{Row: Row{Metadata: map[string]any{}}}
		if i < len(rs.Scores) {
			m.RawSimilarity = float64(rs.Scores[i])
		}
		if rs.IDs != nil {
			m.ID, _ = rs.IDs.GetAsString(i)
		}
		if contents != nil {
			m.Content, _ = contents.GetAsString(i)
		}
		if metas != nil {
			if raw, err := metas.Get(i); err == nil {
				if b, ok := raw.([]byte); ok {
					if err := json.Unmarshal(b, &m.Metadata); err != nil {
						s.logger.Warn("unreadable milvus metadata", zap.String("id", m.ID), zap.Error(err))
					}
				}
			}
		}
		if vectors != nil {
			if raw, err := vectors.Get(i); err == nil {
				switch v := raw.(type) {
				case entity.FloatVector:
					m.Embedding = []float32(v)
				case []float32:
					m.Embedding = v
				}
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Close closes the client connection.
func (s *MilvusStore) Close() error {
	return s.client.Close(context.Background())
}

// milvusFilter renders a metadata filter as a boolean expression over the
// JSON field, with keys sorted for a stable expression.
func milvusFilter(f Filter) string {
	if f.IsEmpty() {
		return ""
	}
	keys := make([]string, 0, len(f.Metadata))
	for k := range f.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, len(keys))
	for i, k := range keys {
		clauses[i] = fmt.Sprintf("%s[%s] == %s", milvusFieldMetadata, strconv.Quote(k), strconv.Quote(f.Metadata[k]))
	}
	return strings.Join(clauses, " && ")
}

var _ Store = (*MilvusStore)(nil)
