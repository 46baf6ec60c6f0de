// Package retrieval implements the note retrieval engine: embedding a query
// or note, talking to the vector store, and shaping what comes back.
//
// The engine is stateless per call. Every operation makes at most two
// blocking calls (embed, then store) and never retries; failures surface as
// one of the sentinel errors so the transport can name the failing stage.
//
// Similarity scores reported by stores are 1 - cosine_distance. The engine
// rescales them with
//
//	distance   = 1 - raw
//	similarity = 1 - distance/2
//
// before sorting, so a perfect match scores 1.
package retrieval
