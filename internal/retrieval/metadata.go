package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Metadata keys the engine writes by default.
const (
	MetaFileID         = "file_id"
	MetaSource         = "source"
	MetaBlobType       = "blobType"
	MetaFileSize       = "file_size"
	MetaFileHash       = "file_hash"
	MetaContentLength  = "content_length"
	MetaIsTruncated    = "is_truncated"
	MetaLastModified   = "last_modified"
	MetaCreatedAt      = "created_at"
	MetaProcessingInfo = "processing_info"
)

// Default values for notes added through the engine.
const (
	DefaultSource   = "from_chat"
	DefaultBlobType = "text"
)

// timestampLayout is RFC 3339 in UTC with fractional seconds.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// DefaultMetadata builds the metadata every new note starts with.
func DefaultMetadata(content, model string, dimension int, now time.Time, fileID string) map[string]any {
	sum := sha256.Sum256([]byte(content))
	ts := now.UTC().Format(timestampLayout)

	return map[string]any{
		MetaFileID:        fileID,
		MetaSource:        DefaultSource,
		MetaBlobType:      DefaultBlobType,
		MetaFileSize:      len(content),
		MetaFileHash:      hex.EncodeToString(sum[:]),
		MetaContentLength: len(content),
		MetaIsTruncated:   false,
		MetaLastModified:  ts,
		MetaCreatedAt:     ts,
		MetaProcessingInfo: map[string]any{
			"model":               model,
			"processed_at":        ts,
			"embedding_dimension": dimension,
		},
	}
}

// MergeMetadata returns a new map holding defaults overlaid with caller.
// Caller keys win. Neither input is modified.
func MergeMetadata(defaults, caller map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(caller))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range caller {
		out[k] = v
	}
	return out
}
