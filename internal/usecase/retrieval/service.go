package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// Service turns a question into ranked candidates from one collection.
type Service struct {
	index      Index
	embed      Embedder
	collection string
}

// New creates a retrieval service bound to a collection.
func New(index Index, embed Embedder, collection string) *Service {
	return &Service{index: index, embed: embed, collection: collection}
}

// Retrieve embeds the question and returns at most k candidates, best first.
// An index with no matches yields an empty slice.
func (s *Service) Retrieve(ctx context.Context, question string, k int) ([]domain.Candidate, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is required: %w", domain.ErrInvalidRequest)
	}

	emb, err := s.embed.Embed(ctx, question)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingFailure) {
			return nil, fmt.Errorf("embed question: %w", err)
		}
		return nil, fmt.Errorf("embed question: %w: %w", domain.ErrEmbeddingFailure, err)
	}
	if len(emb.Embedding) == 0 {
		return nil, fmt.Errorf("embed question: empty vector: %w", domain.ErrEmbeddingFailure)
	}

	hits, err := s.index.Query(ctx, s.collection, emb.Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, domain.NewCandidate(h))
	}
	return candidates, nil
}
