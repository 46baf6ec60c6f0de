package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/sanitize"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var testVocabulary = []string{"dentist", "checkup", "milk", "eggs", "meeting"}

// wordEmbedder counts vocabulary words, plus a constant bias dimension.
type wordEmbedder struct{}

func (wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(testVocabulary)+1)
	vec[len(testVocabulary)] = 0.05
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,")
		for i, v := range testVocabulary {
			if w == v {
				vec[i]++
			}
		}
	}
	return vec, nil
}

func newChromemEngine(t *testing.T) *retrieval.Engine {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       sanitize.MemoryPath,
		Collection: "documents",
		Dimension:  len(testVocabulary) + 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine, err := retrieval.New(retrieval.Config{
		Model:        "test-model",
		DefaultLimit: 5,
	}, wordEmbedder{}, store, nil)
	require.NoError(t, err)
	return engine
}

// collectToolCounts sums invocations per tool and errors per reason.
func collectToolCounts(t *testing.T, reader *metric.ManualReader) (map[string]int64, map[string]int64) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	invocations := map[string]int64{}
	errs := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				switch m.Name {
				case "ragd.mcp.tool.invocations_total":
					tool, _ := dp.Attributes.Value("tool")
					invocations[tool.AsString()] += dp.Value
				case "ragd.mcp.tool.errors_total":
					reason, _ := dp.Attributes.Value("reason")
					errs[reason.AsString()] += dp.Value
				}
			}
		}
	}
	return invocations, errs
}
