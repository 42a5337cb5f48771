package rerank

import "context"

// Scorer scores (query, text) pairs with a cross-encoder. Scores are relative:
// only their order matters. The result has one score per text, in input order.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}
