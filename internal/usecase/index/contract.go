package index

import (
	"context"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// Repository is the storage contract of the vector index. Implemented by the
// SQLite file index and the Redis/Valkey repository.
type Repository interface {
	Ping(ctx context.Context) error
	EnsureCollection(ctx context.Context, spec domain.CollectionSpec) (domain.Collection, bool, error)
	GetCollection(ctx context.Context, name string) (domain.Collection, error)
	Replace(ctx context.Context, spec domain.CollectionSpec, chunks []domain.Chunk) (domain.Collection, error)
	Upsert(ctx context.Context, name string, chunks []domain.Chunk) (domain.Collection, error)
	Query(ctx context.Context, name string, vector []float32, k int) ([]domain.Hit, error)
	Sample(ctx context.Context, name string, n int) ([]domain.Hit, error)
}

// Chunker splits documents into chunks.
type Chunker interface {
	Params() domain.ChunkingParams
	Chunk(doc domain.Document) []domain.Chunk
}
