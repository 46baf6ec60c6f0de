// Package embeddings turns text into vectors for the retrieval engine.
//
// Three providers are supported: the OpenAI embeddings API (openai-go),
// any OpenAI-compatible server such as Text Embeddings Inference (via
// langchaingo), and local ONNX models (fastembed-go, cgo builds only).
// NewProvider selects one from configuration and optionally wraps it with
// a rate limiter and OpenTelemetry instrumentation.
//
// Providers never retry: a failed call is reported to the caller.
package embeddings
