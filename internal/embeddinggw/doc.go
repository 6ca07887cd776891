// Package embeddinggw implements the narrow asynchronous interface to an
// external embedding service: embed(text) -> vector of dimension D.
// Transient failures are retried with bounded exponential backoff; a hard
// failure surfaces as an EmbeddingUnavailable or EmbeddingTimeout error,
// leaving the caller to decide whether to persist a memory without an
// embedding.
package embeddinggw
