//go:build cgo

package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/sanitize"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteStore implements Store backed by SQLite with the sqlite-vec
// extension.
//
// Notes live in a regular table with an integer autoincrement id; their
// vectors live in a vec0 virtual table sharing that rowid. Searches read the
// vector back as JSON text through vec_to_json.
type SQLiteStore struct {
	db     *sql.DB
	config SQLiteConfig
	vecTbl string
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database and its tables.
func NewSQLiteStore(config SQLiteConfig, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	dsn := ":memory:"
	if config.Path != sanitize.MemoryPath {
		path, err := sanitize.StorePath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", path, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if dsn == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	s := &SQLiteStore{db: db, config: config, vecTbl: config.Table + "_vec", logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating tables: %w", err)
	}

	logger.Info("sqlite store opened",
		zap.String("path", dsn),
		zap.String("table", config.Table),
	)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	notesDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	content   TEXT NOT NULL,
	metadata  TEXT NOT NULL DEFAULT '{}'
)`, s.config.Table)
	if _, err := s.db.Exec(notesDDL); err != nil {
		return fmt.Errorf("creating %s table: %w", s.config.Table, err)
	}

	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d] distance_metric=cosine)`,
		s.vecTbl, s.config.Dimension,
	)
	if _, err := s.db.Exec(vecDDL); err != nil {
		return fmt.Errorf("creating %s virtual table: %w", s.vecTbl, err)
	}
	return nil
}

// Insert stores the note and its vector in one transaction.
func (s *SQLiteStore) Insert(ctx context.Context, row Row) (Row, error) {
	if len(row.Embedding) != s.config.Dimension {
		return Row{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(row.Embedding), s.config.Dimension)
	}

	blob, err := sqlite_vec.SerializeFloat32(row.Embedding)
	if err != nil {
		return Row{}, fmt.Errorf("serializing embedding: %w", err)
	}
	metadata := row.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return Row{}, fmt.Errorf("marshalling metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Row{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(content, metadata) VALUES (?, ?)`, s.config.Table),
		row.Content, string(metaJSON))
	if err != nil {
		return Row{}, fmt.Errorf("inserting note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Row{}, fmt.Errorf("reading inserted id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, s.vecTbl), id, blob); err != nil {
		return Row{}, fmt.Errorf("inserting vector %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return Row{}, fmt.Errorf("committing insert: %w", err)
	}

	stored := row
	stored.ID = strconv.FormatInt(id, 10)
	return stored, nil
}

// Delete removes the note and its vector. Non-numeric ids match nothing.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (int, error) {
	rowID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.config.Table), rowID)
	if err != nil {
		return 0, fmt.Errorf("deleting note %d: %w", rowID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, s.vecTbl), rowID); err != nil {
		return 0, fmt.Errorf("deleting vector %d: %w", rowID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}
	return int(n), nil
}

// NearestNeighbors runs a KNN query on the vec0 table. Metadata filters are
// applied after the KNN step, so a filtered query may return fewer than k
// rows.
func (s *SQLiteStore) NearestNeighbors(ctx context.Context, vec []float32, k int, filter Filter) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("serializing query vector: %w", err)
	}

	q := fmt.Sprintf(`WITH knn AS (
	SELECT rowid, distance FROM %s WHERE embedding MATCH ? AND k = ?
)
SELECT n.id, n.content, n.metadata, vec_to_json(v.embedding), knn.distance
FROM knn
JOIN %s n ON n.id = knn.rowid
JOIN %s v ON v.rowid = knn.rowid
ORDER BY knn.distance`, s.vecTbl, s.config.Table, s.vecTbl)

	rows, err := s.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := []Match{}
	for rows.Next() {
		var (
			id       int64
			m        Match
			metaStr  string
			distance float64
		)
		if err := rows.Scan(&id, &m.Content, &metaStr, &m.EncodedEmbedding, &distance); err != nil {
			return nil, fmt.Errorf("scanning vector result: %w", err)
		}
		m.ID = strconv.FormatInt(id, 10)
		m.RawSimilarity = 1 - distance
		m.Metadata = map[string]any{}
		if metaStr != "" {
			if err := json.Unmarshal([]byte(metaStr), &m.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshalling metadata for %d: %w", id, err)
			}
		}
		if !filter.Matches(m.Metadata) {
			continue
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector results: %w", err)
	}
	return matches, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
