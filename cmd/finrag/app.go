package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/finrag/internal/chunker"
	"github.com/kailas-cloud/finrag/internal/config"
	dbRedis "github.com/kailas-cloud/finrag/internal/db/redis"
	dbSQLite "github.com/kailas-cloud/finrag/internal/db/sqlite"
	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/metrics"
	chunkrepo "github.com/kailas-cloud/finrag/internal/repository/chunk"
	"github.com/kailas-cloud/finrag/internal/repository/embcache"
	ollamaTransport "github.com/kailas-cloud/finrag/internal/transport/ollama"
	openaiTransport "github.com/kailas-cloud/finrag/internal/transport/openai"
	rerankTransport "github.com/kailas-cloud/finrag/internal/transport/rerank"
	answeruc "github.com/kailas-cloud/finrag/internal/usecase/answer"
	embeddinguc "github.com/kailas-cloud/finrag/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/finrag/internal/usecase/health"
	indexuc "github.com/kailas-cloud/finrag/internal/usecase/index"
	rerankuc "github.com/kailas-cloud/finrag/internal/usecase/rerank"
	retrievaluc "github.com/kailas-cloud/finrag/internal/usecase/retrieval"
)

// kvStore backs the embedding cache. Both index drivers provide one.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// app is the composition root shared by every command.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	index    *indexuc.Service
	embedder domain.Embedder
	answers  *answeruc.Service
	health   *healthuc.Service
	closers  []func()
}

// newApp wires store, embedder chain, index, retriever, reranker, prompt
// builder and generator.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	a := &app{cfg: cfg, logger: logger}

	repo, cache, err := a.openIndex(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	embedder, err := buildEmbedder(cfg.Embedding, cache, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.embedder = embedder

	chk, err := chunker.New(domain.ChunkingParams{
		Mode:    domain.ChunkMode(cfg.Chunking.Mode),
		Size:    cfg.Chunking.Size,
		Overlap: cfg.Chunking.Overlap,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	a.index = indexuc.New(repo, embedder, chk, indexuc.Options{
		Model:       cfg.Embedding.Model,
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
	}, logger)

	// Pass nil interfaces (not typed nil pointers) for disabled stages.
	var scorer rerankuc.Scorer
	var rerankHealth healthuc.Checker
	if cfg.Rerank.Enabled {
		rc, err := rerankTransport.NewClient(&rerankTransport.Config{
			URL:     cfg.Rerank.URL,
			Model:   cfg.Rerank.Model,
			APIKey:  cfg.Rerank.APIKey,
			Timeout: time.Duration(cfg.Rerank.TimeoutSec) * time.Second,
			Logger:  logger,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create reranker: %w", err)
		}
		scorer, rerankHealth = rc, rc
	}

	generator, generatorHealth, err := buildGenerator(cfg.Generator, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	prompts, fromFile, err := answeruc.LoadPromptBuilder(cfg.Prompt.TemplatePath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load prompt template: %w", err)
	}
	if !fromFile {
		logger.Warn("Prompt template not found, using built-in default", zap.String("path", cfg.Prompt.TemplatePath))
	}

	a.answers = answeruc.New(
		retrievaluc.New(a.index, embedder, cfg.Index.Collection),
		rerankuc.New(scorer, cfg.Rerank.KeepTop),
		prompts,
		generator,
		answeruc.Options{
			DefaultK:         cfg.Retrieval.DefaultK,
			MaxK:             cfg.Retrieval.MaxK,
			KeepTop:          cfg.Rerank.KeepTop,
			GeneratorTimeout: cfg.Generator.GeneratorTimeout(),
		},
	)

	a.health = healthuc.New(a.index, embedder).
		WithOptional("generator", generatorHealth).
		WithOptional("reranker", rerankHealth).
		WithTimeout(time.Duration(cfg.HTTP.HealthProbeSec) * time.Second)

	logger.Info("Pipeline ready",
		zap.String("index_driver", cfg.Index.Driver),
		zap.String("collection", cfg.Index.Collection),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Stringer("chunking", chk.Params()),
		zap.Bool("rerank", cfg.Rerank.Enabled),
		zap.String("generator_provider", cfg.Generator.Provider),
		zap.String("generator_model", cfg.Generator.Model),
	)
	return a, nil
}

// Close releases the store connection.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openIndex opens the configured vector index and the key-value store that
// backs the embedding cache.
func (a *app) openIndex(ctx context.Context) (indexuc.Repository, kvStore, error) {
	cfg := a.cfg.Index
	switch cfg.Driver {
	case config.DriverRedis, config.DriverValkey:
		store, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.Addrs, Password: cfg.Password})
		if err != nil {
			return nil, nil, fmt.Errorf("create %s store: %w", cfg.Driver, err)
		}
		a.closers = append(a.closers, store.Close)

		if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
			return nil, nil, fmt.Errorf("%s not ready: %w", cfg.Driver, err)
		}
		a.logger.Info("Connected to index store", zap.String("driver", cfg.Driver), zap.Strings("addrs", cfg.Addrs))

		repo := chunkrepo.New(store, a.logger).WithHNSW(chunkrepo.HNSWConfig{
			M:           cfg.HNSWM,
			EFConstruct: cfg.HNSWEFConstruct,
		})
		return repo, store, nil

	case config.DriverSQLite:
		store, err := dbSQLite.NewStore(cfg.PersistDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite index: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("Failed to close sqlite index", zap.Error(err))
			}
		})
		a.logger.Info("Opened index store", zap.String("driver", cfg.Driver), zap.String("path", store.Path()))
		return store, store, nil

	default:
		return nil, nil, fmt.Errorf("unknown index driver %q", cfg.Driver)
	}
}

// buildEmbedder assembles the decorator chain: provider -> throttle -> cache -> normalizer.
// Cache hits never wait on the rate limiter.
func buildEmbedder(
	cfg config.EmbeddingConfig, cache kvStore, logger *zap.Logger,
) (*domain.NormalizingEmbedder, error) {
	var base domain.Embedder
	switch cfg.Provider {
	case config.ProviderOllama:
		e, err := ollamaTransport.NewEmbedder(&ollamaTransport.Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}
		base = e
	case config.ProviderOpenAI:
		base = openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Provider:   cfg.Provider,
			Logger:     logger,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}
	var embedder domain.Embedder = embeddinguc.NewThrottled(base, embeddinguc.Options{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		Limiter:  limiter,
		MaxBatch: cfg.BatchSize,
	}, logger)

	if cfg.Cache && cache != nil {
		embedder = embcache.New(embedder, cache, cfg.Model, metrics.EmbeddingCacheTotal, logger).
			WithDimensions(cfg.Dimensions).
			WithTTL(cfg.CacheTTL())
	}

	return domain.NewNormalizingEmbedder(embedder), nil
}

// buildGenerator returns nil interfaces when generation is disabled.
func buildGenerator(cfg config.GeneratorConfig, logger *zap.Logger) (answeruc.Generator, healthuc.Checker, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		g := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: float32(cfg.Temperature),
			MaxTokens:   cfg.MaxTokens,
			Logger:      logger,
		})
		return g, g, nil
	case config.ProviderOllama:
		g, err := ollamaTransport.NewGenerator(&ollamaTransport.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create ollama generator: %w", err)
		}
		return g, g, nil
	case config.ProviderNone:
		logger.Warn("Generator disabled, answers degrade to refusal with top citations")
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}
