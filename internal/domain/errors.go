package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexUnavailable signals that the persisted vector store cannot be opened or reached.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrCollectionMissing signals a query against a collection that was never built.
	ErrCollectionMissing = errors.New("collection missing")
	// ErrEmbeddingFailure signals an embedding provider failure.
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrEmbeddingModelMismatch signals that query-time and index-time embedders differ.
	ErrEmbeddingModelMismatch = errors.New("embedding model mismatch")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrChunkingMismatch signals an upsert produced with different chunking parameters.
	ErrChunkingMismatch = errors.New("chunking parameters mismatch")
	// ErrRerankFailure signals a reranker failure. Recovered locally by the pipeline.
	ErrRerankFailure = errors.New("rerank failure")
	// ErrGeneratorUnavailable signals that no generator backend is configured.
	ErrGeneratorUnavailable = errors.New("generator unavailable")
	// ErrGeneratorFailure signals a generator call failure. Recovered locally by the pipeline.
	ErrGeneratorFailure = errors.New("generator failure")
	// ErrMalformedModelOutput signals model output that is not a usable JSON object.
	ErrMalformedModelOutput = errors.New("malformed model output")
	// ErrInvalidRequest signals invalid caller input.
	ErrInvalidRequest = errors.New("invalid request")
)

// EmbeddingModelMismatchError wraps ErrEmbeddingModelMismatch with both model identifiers.
type EmbeddingModelMismatchError struct {
	Indexed string
	Query   string
}

func (e *EmbeddingModelMismatchError) Error() string {
	return fmt.Sprintf("%s: collection indexed with %q, query embedder is %q",
		ErrEmbeddingModelMismatch.Error(), e.Indexed, e.Query)
}

func (e *EmbeddingModelMismatchError) Unwrap() error { return ErrEmbeddingModelMismatch }

// NewEmbeddingModelMismatch creates a model mismatch error.
func NewEmbeddingModelMismatch(indexed, query string) error {
	return &EmbeddingModelMismatchError{Indexed: indexed, Query: query}
}
