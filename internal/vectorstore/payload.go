package vectorstore

import (
	"encoding/json"
	"fmt"
)

// encodeValue renders a metadata value for backends that only store strings.
func encodeValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// encodeMetadata JSON-encodes every value so it survives a string-only map.
func encodeMetadata(metadata map[string]any) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = encodeValue(v)
	}
	return out
}

// decodeMetadata reverses encodeMetadata. Values that are not valid JSON are
// kept as plain strings.
func decodeMetadata(metadata map[string]string) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, raw := range metadata {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			out[k] = raw
			continue
		}
		out[k] = v
	}
	return out
}

// encodeFilter converts a filter into the encoded form used by string-only
// metadata stores.
func encodeFilter(f Filter) map[string]string {
	if f.IsEmpty() {
		return nil
	}
	out := make(map[string]string, len(f.Metadata))
	for k, v := range f.Metadata {
		out[k] = encodeValue(v)
	}
	return out
}

// normalizeJSON round-trips metadata through encoding/json so nested values
// use only JSON-native types (map[string]any, []any, float64, string, bool).
func normalizeJSON(metadata map[string]any) (map[string]any, error) {
	if metadata == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return out, nil
}
