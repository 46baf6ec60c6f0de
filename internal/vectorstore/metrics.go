package vectorstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts store operations.
	// Labels: store (provider), op (insert, delete, search), result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"store", "op", "result"},
	)

	// OperationDuration tracks how long store operations take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"store", "op"},
	)

	// RowsReturned tracks how many rows nearest-neighbor queries return.
	RowsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "search_rows",
			Help:      "Rows returned per nearest-neighbor query",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"store"},
	)
)

// Instrumented records Prometheus metrics around another Store.
type Instrumented struct {
	next  Store
	store string
}

// NewInstrumented wraps next; name becomes the store label.
func NewInstrumented(next Store, name string) *Instrumented {
	return &Instrumented{next: next, store: name}
}

// Unwrap returns the wrapped store.
func (s *Instrumented) Unwrap() Store {
	return s.next
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	OperationDuration.WithLabelValues(s.store, op).Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(s.store, op, result).Inc()
}

func (s *Instrumented) Insert(ctx context.Context, row Row) (Row, error) {
	start := time.Now()
	out, err := s.next.Insert(ctx, row)
	s.observe("insert", start, err)
	return out, err
}

func (s *Instrumented) Delete(ctx context.Context, id string) (int, error) {
	start := time.Now()
	n, err := s.next.Delete(ctx, id)
	s.observe("delete", start, err)
	return n, err
}

func (s *Instrumented) NearestNeighbors(ctx context.Context, vec []float32, k int, filter Filter) ([]Match, error) {
	start := time.Now()
	matches, err := s.next.NearestNeighbors(ctx, vec, k, filter)
	s.observe("search", start, err)
	if err == nil {
		RowsReturned.WithLabelValues(s.store).Observe(float64(len(matches)))
	}
	return matches, err
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}

var _ Store = (*Instrumented)(nil)
