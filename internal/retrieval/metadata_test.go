package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMetadata(t *testing.T) {
	content := "héllo"
	now := time.Date(2025, 1, 2, 3, 4, 5, 6000, time.FixedZone("EST", -5*3600))

	md := DefaultMetadata(content, "all-MiniLM-L6-v2", 384, now, "file-1")

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, "file-1", md[MetaFileID])
	assert.Equal(t, DefaultSource, md[MetaSource])
	assert.Equal(t, DefaultBlobType, md[MetaBlobType])
	assert.Equal(t, 6, md[MetaFileSize], "size counts bytes")
	assert.Equal(t, 6, md[MetaContentLength])
	assert.Equal(t, hex.EncodeToString(sum[:]), md[MetaFileHash])
	assert.Equal(t, false, md[MetaIsTruncated])
	assert.Equal(t, "2025-01-02T08:04:05.000006Z", md[MetaCreatedAt], "timestamps are UTC")
	assert.Equal(t, md[MetaCreatedAt], md[MetaLastModified])

	info, ok := md[MetaProcessingInfo].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "all-MiniLM-L6-v2", info["model"])
	assert.Equal(t, 384, info["embedding_dimension"])
	assert.Equal(t, md[MetaCreatedAt], info["processed_at"])
}

func TestMergeMetadata(t *testing.T) {
	defaults := map[string]any{"source": "from_chat", "file_id": "abc"}
	caller := map[string]any{"source": "test", "extra": 1}

	merged := MergeMetadata(defaults, caller)

	assert.Equal(t, map[string]any{"source": "test", "file_id": "abc", "extra": 1}, merged)
	assert.Equal(t, map[string]any{"source": "from_chat", "file_id": "abc"}, defaults)
	assert.Equal(t, map[string]any{"source": "test", "extra": 1}, caller)

	merged["new"] = true
	assert.NotContains(t, defaults, "new")
}

func TestMergeMetadata_NilCaller(t *testing.T) {
	defaults := map[string]any{"source": "from_chat"}
	assert.Equal(t, defaults, MergeMetadata(defaults, nil))
	assert.Empty(t, MergeMetadata(nil, nil))
}
