package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Answer pipeline Prometheus metrics.
var (
	RerankOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_outcomes_total",
			Help:      "Rerank stage outcomes",
		},
		[]string{"outcome"}, // applied / passthrough / failed
	)

	GeneratorOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generator_outcomes_total",
			Help:      "Generator call outcomes by parsed output kind",
		},
		[]string{"outcome"}, // structured / unstructured / empty / unavailable / failed / skipped
	)

	CitationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "citations_total",
			Help:      "Model citations checked against the retrieved candidates",
		},
		[]string{"status"}, // matched / unknown
	)

	AnswerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_duration_seconds",
			Help:      "End-to-end answer duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"}, // ok / error
	)

	IndexedChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_chunks_total",
			Help:      "Chunks written to the vector index",
		},
		[]string{"collection", "op"}, // op: rebuild / upsert
	)
)

var registerPipeline sync.Once

// RegisterPipelineMetrics adds the answer pipeline collectors to the default
// registry. Safe to call more than once.
func RegisterPipelineMetrics() {
	registerPipeline.Do(func() {
		prometheus.MustRegister(
			RerankOutcomesTotal,
			GeneratorOutcomesTotal,
			CitationsTotal,
			AnswerDuration,
			IndexedChunksTotal,
		)
	})
}
