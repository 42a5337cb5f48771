package rerank

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/logger"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

// DefaultKeepTop is the number of candidates kept after reranking.
const DefaultKeepTop = 8

// Service reorders candidates by cross-encoder relevance. A missing or failing
// scorer degrades to passthrough and never fails the request.
type Service struct {
	scorer  Scorer
	keepTop int
}

// New creates a rerank service. scorer may be nil.
func New(scorer Scorer, keepTop int) *Service {
	if keepTop <= 0 {
		keepTop = DefaultKeepTop
	}
	return &Service{scorer: scorer, keepTop: keepTop}
}

// KeepTop returns the default truncation size.
func (s *Service) KeepTop() int { return s.keepTop }

// Rerank scores every candidate against question, sorts by descending score and
// keeps the best keepTop. keepTop <= 0 uses the service default. The input slice
// is not modified.
func (s *Service) Rerank(
	ctx context.Context, question string, candidates []domain.Candidate, keepTop int,
) []domain.Candidate {
	if keepTop <= 0 {
		keepTop = s.keepTop
	}
	n := min(keepTop, len(candidates))
	if n == 0 {
		return []domain.Candidate{}
	}

	if s.scorer == nil {
		metrics.RerankOutcomesTotal.WithLabelValues("passthrough").Inc()
		return passthrough(candidates, n)
	}

	texts := make([]string, len(candidates))
	for i := range candidates {
		texts[i] = candidates[i].Text
	}
	scores, err := s.scorer.Score(ctx, question, texts)
	if err == nil && len(scores) != len(candidates) {
		err = fmt.Errorf("got %d scores for %d candidates", len(scores), len(candidates))
	}
	if err != nil {
		metrics.RerankOutcomesTotal.WithLabelValues("failed").Inc()
		logger.FromContext(ctx).Warn("Rerank failed, keeping retrieval order",
			zap.Error(fmt.Errorf("%w: %w", domain.ErrRerankFailure, err)),
			zap.Int("candidates", len(candidates)),
		)
		return passthrough(candidates, n)
	}

	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		score := scores[i]
		out[i].RerankScore = &score
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].RerankScore > *out[j].RerankScore
	})
	metrics.RerankOutcomesTotal.WithLabelValues("applied").Inc()
	return out[:n]
}

func passthrough(candidates []domain.Candidate, n int) []domain.Candidate {
	out := make([]domain.Candidate, n)
	copy(out, candidates[:n])
	return out
}
