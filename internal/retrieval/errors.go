package retrieval

import "errors"

var (
	// ErrValidation indicates a request the engine refuses before making
	// any external call.
	ErrValidation = errors.New("validation failed")

	// ErrEmbeddingUnavailable indicates the embedding provider failed.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrStoreUnavailable indicates the vector store failed.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrInsertFailed indicates the store accepted an insert but returned
	// no id for it.
	ErrInsertFailed = errors.New("insert failed")
)
