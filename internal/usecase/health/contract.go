package health

import "context"

// IndexPinger checks vector index availability.
type IndexPinger interface {
	Ping(ctx context.Context) error
}

// Checker checks an external provider (embedder, generator, reranker).
type Checker interface {
	HealthCheck(ctx context.Context) error
}
