package answer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/output"
	"github.com/kailas-cloud/finrag/internal/logger"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

const (
	// DefaultK is the retrieval depth when the caller does not pass one.
	DefaultK = 12
	// DefaultMaxK caps caller-supplied k.
	DefaultMaxK = 50
	// DefaultGeneratorTimeout bounds the single generator call.
	DefaultGeneratorTimeout = 60 * time.Second

	debugTop = 5
)

// Options tune the answer pipeline.
type Options struct {
	DefaultK         int
	MaxK             int
	KeepTop          int
	GeneratorTimeout time.Duration
}

// Service runs retrieve, rerank, prompt, generate and parse for one question.
type Service struct {
	retriever Retriever
	reranker  Reranker
	prompts   *PromptBuilder
	generator Generator
	opts      Options
}

// New creates the answer pipeline. generator may be nil, in which case every
// answer degrades to the refusal with heuristic citations.
func New(retriever Retriever, reranker Reranker, prompts *PromptBuilder, generator Generator, opts Options) *Service {
	if opts.DefaultK <= 0 {
		opts.DefaultK = DefaultK
	}
	if opts.MaxK <= 0 {
		opts.MaxK = DefaultMaxK
	}
	if opts.GeneratorTimeout <= 0 {
		opts.GeneratorTimeout = DefaultGeneratorTimeout
	}
	if prompts == nil {
		prompts = NewPromptBuilder("")
	}
	return &Service{
		retriever: retriever,
		reranker:  reranker,
		prompts:   prompts,
		generator: generator,
		opts:      opts,
	}
}

// NormalizeK applies the default and the upper bound to a caller-supplied k.
func (s *Service) NormalizeK(k int) int {
	if k <= 0 {
		return s.opts.DefaultK
	}
	return min(k, s.opts.MaxK)
}

// Answer returns a grounded answer. Only retrieval failures are returned as
// errors; everything after retrieval degrades to a well-formed Answer.
func (s *Service) Answer(ctx context.Context, question string, k int) (domain.Answer, error) {
	start := time.Now()
	ans, err := s.answer(ctx, question, s.NormalizeK(k))
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.AnswerDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	return ans, err
}

func (s *Service) answer(ctx context.Context, question string, k int) (domain.Answer, error) {
	log := logger.FromContext(ctx)

	candidates, err := s.retriever.Retrieve(ctx, question, k)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("retrieve: %w", err)
	}
	logCandidates(log, "pre-rerank", candidates)

	if s.reranker != nil {
		candidates = s.reranker.Rerank(ctx, question, candidates, s.opts.KeepTop)
	}
	logCandidates(log, "post-rerank", candidates)

	if len(candidates) == 0 {
		metrics.GeneratorOutcomesTotal.WithLabelValues("skipped").Inc()
		return domain.Refusal(), nil
	}

	if s.generator == nil {
		metrics.GeneratorOutcomesTotal.WithLabelValues("unavailable").Inc()
		log.Debug("No generator configured", zap.Error(domain.ErrGeneratorUnavailable))
		return domain.DegradedAnswer(candidates), nil
	}

	prompt, err := s.prompts.Build(question, candidates)
	if err != nil {
		metrics.GeneratorOutcomesTotal.WithLabelValues("failed").Inc()
		log.Warn("Prompt build failed", zap.Error(err))
		return domain.DegradedAnswer(candidates), nil
	}

	raw, err := s.generate(ctx, prompt)
	if err != nil {
		metrics.GeneratorOutcomesTotal.WithLabelValues("failed").Inc()
		log.Warn("Generator call failed, answering with top candidates", zap.Error(err))
		return domain.DegradedAnswer(candidates), nil
	}

	out := Decode(raw)
	metrics.GeneratorOutcomesTotal.WithLabelValues(string(out.Kind())).Inc()
	if out.Kind() != output.Structured {
		log.Debug("Generator output is not a JSON object",
			zap.String("kind", string(out.Kind())),
			zap.Error(domain.ErrMalformedModelOutput))
	}
	return Parse(out, candidates), nil
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, s.opts.GeneratorTimeout)
	defer cancel()

	raw, err := s.generator.Generate(gctx, prompt)
	if err != nil {
		if errors.Is(err, domain.ErrGeneratorFailure) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", domain.ErrGeneratorFailure, err)
	}
	return raw, nil
}

func logCandidates(log *zap.Logger, stage string, candidates []domain.Candidate) {
	if ce := log.Check(zap.DebugLevel, "Top candidates"); ce != nil {
		top := candidates[:min(debugTop, len(candidates))]
		fields := make([]string, len(top))
		for i, c := range top {
			score := ""
			if c.RerankScore != nil {
				score = fmt.Sprintf(" rerank=%.3f", *c.RerankScore)
			}
			fields[i] = fmt.Sprintf("%s sim=%.3f%s", c.Key(), c.Similarity, score)
		}
		ce.Write(zap.String("stage", stage), zap.Int("total", len(candidates)), zap.Strings("candidates", fields))
	}
}
