package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/sanitize"
)

// SupabaseConfig configures the PostgREST store.
type SupabaseConfig struct {
	URL           string
	AnonKey       string
	Table         string
	MatchFunction string
	Timeout       time.Duration

	// HTTPClient supplies the transport requests go through. Tests point it
	// at httptest.
	HTTPClient *http.Client
}

// Validate checks the configuration.
func (c SupabaseConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("%w: invalid url: %v", ErrInvalidConfig, err)
	}
	if c.AnonKey == "" {
		return fmt.Errorf("%w: anon key is required", ErrInvalidConfig)
	}
	if err := sanitize.ValidateTableName(c.Table); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := sanitize.ValidateTableName(c.MatchFunction); err != nil {
		return fmt.Errorf("%w: match function: %v", ErrInvalidConfig, err)
	}
	return nil
}

// SupabaseStore implements Store against a Supabase project through its
// PostgREST API. The table is expected to have id (bigint identity),
// content, metadata (jsonb) and embedding (vector) columns, and the match
// function returns id, content, metadata, embedding and similarity.
type SupabaseStore struct {
	restURL   string
	transport http.RoundTripper
	config    SupabaseConfig
	logger    *zap.Logger
}

// supabaseRow is the wire shape of a table row. Embedding stays raw because
// pgvector returns it as a string while inserts send an array.
type supabaseRow struct {
	ID         json.RawMessage `json:"id,omitempty"`
	Content    string          `json:"content"`
	Metadata   map[string]any  `json:"metadata"`
	Embedding  json.RawMessage `json:"embedding,omitempty"`
	Similarity *float64        `json:"similarity,omitempty"`
}

// NewSupabaseStore creates a PostgREST-backed store.
func NewSupabaseStore(config SupabaseConfig, logger *zap.Logger) (*SupabaseStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MatchFunction == "" {
		config.MatchFunction = "match_documents"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	transport := http.DefaultTransport
	if config.HTTPClient != nil && config.HTTPClient.Transport != nil {
		transport = config.HTTPClient.Transport
	}

	return &SupabaseStore{
		restURL:   strings.TrimRight(config.URL, "/") + "/rest/v1",
		transport: transport,
		config:    config,
		logger:    logger,
	}, nil
}

// Insert posts one row and reads back the representation PostgREST returns.
func (s *SupabaseStore) Insert(ctx context.Context, row Row) (Row, error) {
	metadata := row.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	vec, err := json.Marshal(row.Embedding)
	if err != nil {
		return Row{}, fmt.Errorf("encoding embedding: %w", err)
	}
	body, err := json.Marshal(supabaseRow{
		Content:   row.Content,
		Metadata:  metadata,
		Embedding: vec,
	})
	if err != nil {
		return Row{}, fmt.Errorf("encoding row: %w", err)
	}

	client, call, done := s.client(ctx)
	defer done()

	var rows []supabaseRow
	_, err = client.From(s.config.Table).
		Insert(json.RawMessage(body), false, "", "representation", "").
		ExecuteTo(&rows)
	if err = call.result(err); err != nil {
		return Row{}, fmt.Errorf("inserting into %s: %w", s.config.Table, err)
	}
	if len(rows) == 0 {
		return Row{}, nil
	}

	stored := row
	stored.ID = rowID(rows[0].ID)
	return stored, nil
}

// Delete removes the row whose id equals id and counts the returned rows.
func (s *SupabaseStore) Delete(ctx context.Context, id string) (int, error) {
	client, call, done := s.client(ctx)
	defer done()

	var rows []supabaseRow
	_, err := client.From(s.config.Table).
		Delete("representation", "").
		Eq("id", id).
		ExecuteTo(&rows)
	if err = call.result(err); err != nil {
		return 0, fmt.Errorf("deleting %s from %s: %w", id, s.config.Table, err)
	}
	return len(rows), nil
}

// NearestNeighbors calls the match function RPC.
func (s *SupabaseStore) NearestNeighbors(ctx context.Context, vec []float32, k int, filter Filter) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	f := map[string]string{}
	for key, v := range filter.Metadata {
		f[key] = v
	}
	params, err := json.Marshal(map[string]any{
		"query_embedding": vec,
		"match_count":     k,
		"filter":          f,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding match request: %w", err)
	}

	client, call, done := s.client(ctx)
	defer done()

	// Rpc reports transport failures through ClientError and returns the
	// body whatever the status, so the status comes from the round trip.
	body := client.Rpc(s.config.MatchFunction, "", json.RawMessage(params))
	if err := call.result(client.ClientError); err != nil {
		return nil, fmt.Errorf("calling %s: %w", s.config.MatchFunction, err)
	}
	if status := call.statusCode(); status >= http.StatusBadRequest {
		return nil, fmt.Errorf("calling %s: %w", s.config.MatchFunction, responseError(status, body))
	}

	var rows []supabaseRow
	if err := json.Unmarshal([]byte(body), &rows); err != nil {
		return nil, fmt.Errorf("calling %s: decoding response: %w", s.config.MatchFunction, err)
	}

	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		m := Match{
			Row: Row{
				ID:       rowID(r.ID),
				Content:  r.Content,
				Metadata: r.Metadata,
			},
		}
		if m.Metadata == nil {
			m.Metadata = map[string]any{}
		}
		if r.Similarity != nil {
			m.RawSimilarity = *r.Similarity
		}
		decodeSupabaseEmbedding(r.Embedding, &m.Row)
		matches = append(matches, m)
	}

	s.logger.Debug("matched supabase rows",
		zap.String("function", s.config.MatchFunction),
		zap.Int("k", k),
		zap.Int("results", len(matches)),
	)
	return matches, nil
}

// decodeSupabaseEmbedding keeps a string embedding verbatim for the engine to
// parse and decodes an array embedding directly.
func decodeSupabaseEmbedding(raw json.RawMessage, row *Row) {
	if len(raw) == 0 || string(raw) == "null" {
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		row.EncodedEmbedding = s
		return
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err == nil {
		row.Embedding = vec
		return
	}
	row.EncodedEmbedding = string(raw)
}

// Close releases idle connections.
func (s *SupabaseStore) Close() error {
	if t, ok := s.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// client builds a PostgREST client whose requests are bound to ctx and the
// configured timeout. postgrest-go keeps per-client error state, so every
// operation gets its own client. done must be called once the call returns.
func (s *SupabaseStore) client(ctx context.Context) (*postgrest.Client, *boundTransport, func()) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)

	client := postgrest.NewClient(s.restURL, "", nil)
	client.SetApiKey(s.config.AnonKey)
	client.SetAuthToken(s.config.AnonKey)

	call := &boundTransport{ctx: ctx, base: s.transport}
	client.Transport.Parent = call
	return client, call, cancel
}

// boundTransport runs requests under one context and remembers the last
// response status.
type boundTransport struct {
	ctx  context.Context
	base http.RoundTripper

	mu     sync.Mutex
	status int
}

func (t *boundTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.status = resp.StatusCode
	t.mu.Unlock()
	return resp, nil
}

func (t *boundTransport) statusCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// result prefers the context error and adds the HTTP status to err.
func (t *boundTransport) result(err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := t.ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	if status := t.statusCode(); status >= http.StatusBadRequest {
		return fmt.Errorf("postgrest returned %d: %w", status, err)
	}
	return err
}

// responseError renders a PostgREST error body.
func responseError(status int, body string) error {
	var perr postgrest.ExecuteError
	if err := json.Unmarshal([]byte(body), &perr); err == nil && perr.Message != "" {
		return fmt.Errorf("postgrest returned %d: %s", status, perr.Message)
	}
	const maxErrorBody = 512
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Errorf("postgrest returned %d: %s", status, strings.TrimSpace(body))
}

// rowID renders a numeric or string id column as text.
func rowID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

var (
	_ Store             = (*SupabaseStore)(nil)
	_ http.RoundTripper = (*boundTransport)(nil)
)
