package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "finrag"

// Embedding call outcomes.
const (
	EmbedOK            = "ok"
	EmbedAPIError      = "api_error"
	EmbedCountMismatch = "count_mismatch"
)

var (
	// EmbeddingCallsTotal counts provider round-trips by outcome.
	EmbeddingCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_calls_total",
			Help:      "Embedding provider calls by outcome",
		},
		[]string{"provider", "model", "outcome"},
	)

	embeddingCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_call_duration_seconds",
			Help:      "Latency of successful embedding provider calls",
			Buckets:   prometheus.ExponentialBuckets(0.025, 2, 10),
		},
		[]string{"provider", "model"},
	)

	embeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_tokens_total",
			Help:      "Tokens billed by the embedding provider",
		},
		[]string{"provider", "model"},
	)

	// EmbeddingBatchesTotal counts index-build batches by status (success / error).
	EmbeddingBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_batches_total",
			Help:      "Embedding batches sent while building the index",
		},
		[]string{"status"},
	)

	// EmbeddingCacheTotal counts cache lookups by result (hit / miss).
	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"},
	)
)

// ObserveEmbeddingCall records one provider call. Latency and tokens are only
// kept for successful calls; tokens <= 0 means the provider reports no usage.
func ObserveEmbeddingCall(provider, model, outcome string, elapsed time.Duration, tokens int) {
	EmbeddingCallsTotal.WithLabelValues(provider, model, outcome).Inc()
	if outcome != EmbedOK {
		return
	}
	embeddingCallDuration.WithLabelValues(provider, model).Observe(elapsed.Seconds())
	if tokens > 0 {
		embeddingTokensTotal.WithLabelValues(provider, model).Add(float64(tokens))
	}
}

var registerEmbedding sync.Once

// RegisterEmbeddingMetrics adds the embedding collectors to the default registry.
// Safe to call more than once.
func RegisterEmbeddingMetrics() {
	registerEmbedding.Do(func() {
		prometheus.MustRegister(
			EmbeddingCallsTotal,
			embeddingCallDuration,
			embeddingTokensTotal,
			EmbeddingBatchesTotal,
			EmbeddingCacheTotal,
		)
	})
}
