package retrieval

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Embedding is a dense vector. A nil Embedding encodes as JSON null, which is
// how a stored vector that could not be decoded is reported.
type Embedding []float32

// StoredDocument is a note as held by the vector store.
type StoredDocument struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Embedding Embedding      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
}

// SearchResult is a stored document with its rescaled similarity.
type SearchResult struct {
	StoredDocument
	Similarity float64 `json:"similarity"`
}

var errMalformedEmbedding = errors.New("malformed embedding")

// ParseEmbedding decodes the "[a,b,c]" text form some stores return vectors
// in. Whitespace around brackets and values is tolerated.
func ParseEmbedding(s string) (Embedding, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") || len(s) < 2 {
		return nil, fmt.Errorf("%w: missing brackets", errMalformedEmbedding)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, fmt.Errorf("%w: empty vector", errMalformedEmbedding)
	}

	parts := strings.Split(inner, ",")
	vec := make(Embedding, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", errMalformedEmbedding, i, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: element %d is not finite", errMalformedEmbedding, i)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

// NormalizeID converts a caller-supplied id into the canonical text form the
// stores use. It accepts non-empty strings, Go integers, and integral JSON
// numbers.
func NormalizeID(id any) (string, error) {
	switch v := id.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", fmt.Errorf("%w: id is empty", ErrValidation)
		}
		return s, nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return integralFloat(float64(v))
	case float64:
		return integralFloat(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return strconv.FormatInt(n, 10), nil
		}
		f, err := v.Float64()
		if err != nil {
			return "", fmt.Errorf("%w: id %q is not a number", ErrValidation, v.String())
		}
		return integralFloat(f)
	case nil:
		return "", fmt.Errorf("%w: id is required", ErrValidation)
	default:
		return "", fmt.Errorf("%w: id must be a string or integer, got %T", ErrValidation, id)
	}
}

func integralFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return "", fmt.Errorf("%w: id %v is not an integer", ErrValidation, f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return "", fmt.Errorf("%w: id %v is out of range", ErrValidation, f)
	}
	return strconv.FormatInt(int64(f), 10), nil
}
