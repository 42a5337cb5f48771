// Package embedding holds the provider-facing embedding decorator: request
// pacing, sub-batching and failure logging.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// DefaultMaxBatch caps the texts sent in one provider request.
const DefaultMaxBatch = 256

// Options configure a Throttled embedder.
type Options struct {
	Provider string
	Model    string
	// Limiter paces provider traffic: one token per Embed and per MaxBatch slice. Nil means unpaced.
	Limiter *rate.Limiter
	// MaxBatch caps texts per request; <= 0 means DefaultMaxBatch.
	MaxBatch int
}

// Throttled sits directly on a provider. Every request waits for the limiter,
// batches are split at MaxBatch, and failures are wrapped in
// domain.ErrEmbeddingFailure.
type Throttled struct {
	inner    domain.Embedder
	limiter  *rate.Limiter
	maxBatch int
	model    string
	log      *zap.Logger
}

// NewThrottled wraps a provider embedder.
func NewThrottled(inner domain.Embedder, opts Options, logger *zap.Logger) *Throttled {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultMaxBatch
	}
	return &Throttled{
		inner:    inner,
		limiter:  opts.Limiter,
		maxBatch: opts.MaxBatch,
		model:    opts.Model,
		log:      logger.With(zap.String("provider", opts.Provider), zap.String("model", opts.Model)),
	}
}

// Model returns the embedding model identifier.
func (t *Throttled) Model() string { return t.model }

// Embed embeds one text as a single paced request.
func (t *Throttled) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := t.wait(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}
	start := time.Now()
	res, err := t.inner.Embed(ctx, text)
	if err != nil {
		t.log.Error("Embedding request failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return domain.EmbeddingResult{}, failure("embed", err)
	}
	return res, nil
}

// BatchEmbed embeds texts in order, one paced request per MaxBatch slice.
// Token counts are summed across requests.
func (t *Throttled) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	requests := 0
	for lo := 0; lo < len(texts); lo += t.maxBatch {
		part := texts[lo:min(lo+t.maxBatch, len(texts))]
		if err := t.wait(ctx); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		requests++

		res, err := domain.EmbedAll(ctx, t.inner, part)
		if err != nil {
			t.log.Error("Batch embedding request failed",
				zap.Int("offset", lo), zap.Int("size", len(part)), zap.Error(err))
			return domain.BatchEmbeddingResult{}, failure("batch embed", err)
		}
		if len(res.Embeddings) != len(part) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed at offset %d: got %d vectors for %d texts: %w",
				lo, len(res.Embeddings), len(part), domain.ErrEmbeddingFailure)
		}
		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	t.log.Debug("Embedded texts",
		zap.Int("texts", len(texts)),
		zap.Int("requests", requests),
		zap.Int("total_tokens", out.TotalTokens),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

// HealthCheck proxies the provider health check when it has one.
func (t *Throttled) HealthCheck(ctx context.Context) error {
	if hc, ok := t.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (t *Throttled) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return failure("wait for rate limit", err)
	}
	return nil
}

func failure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrEmbeddingFailure, err)
}
