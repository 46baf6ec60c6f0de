package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/fyrsmithlabs/ragd/internal/sanitize"
)

var qdrantTracer = otel.Tracer("ragd.vectorstore.qdrant")

const (
	payloadID       = "id"
	payloadContent  = "content"
	payloadMetadata = "metadata"

	defaultQdrantMessageSize = 50 * 1024 * 1024
)

// QdrantConfig configures the Qdrant gRPC store.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int

	// MaxMessageSize bounds gRPC messages in both directions. Default 50MB.
	MaxMessageSize int
}

// ApplyDefaults fills unset optional fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaultQdrantMessageSize
	}
}

// Validate checks the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if err := sanitize.ValidateTableName(c.Collection); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// QdrantStore implements Store using Qdrant over gRPC.
//
// Points are keyed by a fresh UUID which is also kept in the "id" payload
// field so deletes can match by keyword. The collection uses cosine
// distance, for which Qdrant's score is already 1 - cosine_distance.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore connects to Qdrant and ensures the collection exists.
func NewQdrantStore(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{client: client, config: config, logger: logger}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.ensureCollection(setupCtx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.ensureCollection")
	defer span.End()

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: checking collection %s: %v", ErrConnectionFailed, s.config.Collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.config.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}

	s.logger.Info("created qdrant collection",
		zap.String("collection", s.config.Collection),
		zap.Int("dimension", s.config.Dimension),
	)
	return nil
}

// Insert upserts one point under a new UUID.
func (s *QdrantStore) Insert(ctx context.Context, row Row) (Row, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Insert")
	defer span.End()

	if len(row.Embedding) != s.config.Dimension {
		return Row{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(row.Embedding), s.config.Dimension)
	}

	metadata, err := normalizeJSON(row.Metadata)
	if err != nil {
		return Row{}, err
	}

	id := uuid.New().String()
	payload, err := qdrant.TryValueMap(map[string]any{
		payloadID:       id,
		payloadContent:  row.Content,
		payloadMetadata: metadata,
	})
	if err != nil {
		return Row{}, fmt.Errorf("encoding payload: %w", err)
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(row.Embedding...),
			Payload: payload,
		}},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Row{}, fmt.Errorf("upserting point to collection %s: %w", s.config.Collection, err)
	}

	span.SetAttributes(attribute.String("id", id))
	span.SetStatus(codes.Ok, "success")

	stored := row
	stored.ID = id
	return stored, nil
}

// Delete counts the points whose id payload matches and then deletes them.
func (s *QdrantStore) Delete(ctx context.Context, id string) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	filter := &qdrant.Filter{Must: []*qdrant.Condition{keywordCondition(payloadID, id)}}

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("counting points in %s: %w", s.config.Collection, err)
	}
	if n == 0 {
		span.SetStatus(codes.Ok, "not found")
		return 0, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("deleting points from %s: %w", s.config.Collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return int(n), nil
}

// NearestNeighbors runs a dense vector query returning payloads and vectors.
func (s *QdrantStore) NearestNeighbors(ctx context.Context, vec []float32, k int, filter Filter) ([]Match, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.NearestNeighbors")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	var qf *qdrant.Filter
	if !filter.IsEmpty() {
		conditions := make([]*qdrant.Condition, 0, len(filter.Metadata))
		for key, v := range filter.Metadata {
			conditions = append(conditions, keywordCondition(payloadMetadata+"."+key, v))
		}
		qf = &qdrant.Filter{Must: conditions}
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(k)),
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		m := Match{RawSimilarity: float64(p.GetScore())}
		payload := p.GetPayload()

		m.ID = payload[payloadID].GetStringValue()
		if m.ID == "" {
			m.ID = p.GetId().GetUuid()
		}
		m.Content = payload[payloadContent].GetStringValue()
		m.Metadata = map[string]any{}
		if md, ok := valueToAny(payload[payloadMetadata]).(map[string]any); ok {
			m.Metadata = md
		}
		m.Embedding = p.GetVectors().GetVector().GetData()

		matches = append(matches, m)
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func keywordCondition(field, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: field,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// valueToAny converts a payload value back to plain Go types.
func valueToAny(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		fields := kind.StructValue.GetFields()
		out := make(map[string]any, len(fields))
		for k, f := range fields {
			out[k] = valueToAny(f)
		}
		return out
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = valueToAny(item)
		}
		return out
	default:
		return nil
	}
}

var _ Store = (*QdrantStore)(nil)
