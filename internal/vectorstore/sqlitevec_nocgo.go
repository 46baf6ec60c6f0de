//go:build !cgo

package vectorstore

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var errSQLiteUnavailable = errors.New("sqlite store requires cgo (build with CGO_ENABLED=1)")

// SQLiteStore is unavailable without cgo.
type SQLiteStore struct{}

// NewSQLiteStore returns an error: the sqlite-vec bindings need cgo.
func NewSQLiteStore(config SQLiteConfig, _ *zap.Logger) (*SQLiteStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return nil, errSQLiteUnavailable
}

func (s *SQLiteStore) Insert(context.Context, Row) (Row, error) { return Row{}, errSQLiteUnavailable }

func (s *SQLiteStore) Delete(context.Context, string) (int, error) { return 0, errSQLiteUnavailable }

func (s *SQLiteStore) NearestNeighbors(context.Context, []float32, int, Filter) ([]Match, error) {
	return nil, errSQLiteUnavailable
}

func (s *SQLiteStore) Close() error { return nil }

var _ Store = (*SQLiteStore)(nil)
