package retrieval

import (
	"context"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// Index runs nearest-neighbor queries against a collection.
type Index interface {
	Query(ctx context.Context, name string, vector []float32, k int) ([]domain.Hit, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
