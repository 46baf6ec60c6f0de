// Package vectorstore stores notes and answers nearest-neighbor queries.
//
// The package exposes one narrow Store interface with an adapter per
// backend:
//
//   - chromem: embedded chromem-go, persistent or in-memory (default)
//   - qdrant: Qdrant over gRPC
//   - milvus: Milvus via the v2 client
//   - sqlite: SQLite with the sqlite-vec extension (cgo builds only)
//   - supabase: a Supabase table and match function over PostgREST
//
// # Similarity
//
// Every adapter reports Match.RawSimilarity as 1 - cosine_distance, whatever
// the backend's native score looks like. Callers may rescale it but never
// need to know which backend produced it.
//
// # Identifiers
//
// IDs are assigned by the store: UUIDs for chromem, Qdrant and Milvus,
// autoincrement integers (as decimal strings) for SQLite and Supabase.
//
// # Usage
//
//	store, err := vectorstore.New(ctx, cfg.Store, 1536, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	row, err := store.Insert(ctx, vectorstore.Row{
//	    Content:   "Dentist appointment on Friday",
//	    Embedding: vec,
//	    Metadata:  map[string]any{"source": "test"},
//	})
//
//	matches, err := store.NearestNeighbors(ctx, query, 5, vectorstore.Filter{})
//
// New wraps the adapter with Prometheus instrumentation
// (ragd_vectorstore_operations_total, ragd_vectorstore_operation_duration_seconds
// and ragd_vectorstore_search_rows).
package vectorstore
