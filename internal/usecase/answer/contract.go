package answer

import (
	"context"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// Retriever returns ranked candidates for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]domain.Candidate, error)
}

// Reranker reorders and truncates candidates. It never fails.
type Reranker interface {
	Rerank(ctx context.Context, question string, candidates []domain.Candidate, keepTop int) []domain.Candidate
}

// Generator sends one prompt to an LLM and returns its raw text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
