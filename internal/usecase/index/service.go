package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

const (
	defaultBatchSize   = 64
	defaultConcurrency = 4
)

// Options tune index building.
type Options struct {
	// Model is the embedding model identifier stored with every collection.
	Model       string
	BatchSize   int
	Concurrency int
}

// Service owns the vector index lifecycle: build, upsert and query.
// Writers of a collection exclude readers of the same collection.
type Service struct {
	repo    Repository
	embed   domain.Embedder
	chunker Chunker
	opts    Options
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// New creates an index service.
func New(repo Repository, embed domain.Embedder, chunker Chunker, opts Options, logger *zap.Logger) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Service{
		repo:    repo,
		embed:   embed,
		chunker: chunker,
		opts:    opts,
		logger:  logger,
		locks:   make(map[string]*sync.RWMutex),
	}
}

// Model returns the embedding model identifier this service indexes and queries with.
func (s *Service) Model() string { return s.opts.Model }

// Ping checks the index store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// EnsureCollection returns the named collection, creating empty metadata when it
// does not exist yet. Idempotent: created is true only for the call that created it.
func (s *Service) EnsureCollection(ctx context.Context, name string, dims int) (domain.Collection, bool, error) {
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	col, created, err := s.repo.EnsureCollection(ctx, s.spec(name, dims))
	if err != nil {
		return domain.Collection{}, false, fmt.Errorf("ensure collection %s: %w", name, err)
	}
	return col, created, nil
}

// Build chunks and embeds docs, then replaces the whole collection with the result.
// A failed build leaves the previous generation in place.
func (s *Service) Build(ctx context.Context, name string, docs []domain.Document) (domain.Collection, error) {
	start := time.Now()

	chunks, err := s.prepare(ctx, docs)
	if err != nil {
		return domain.Collection{}, err
	}

	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	col, err := s.repo.Replace(ctx, s.spec(name, len(chunks[0].Embedding)), chunks)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("rebuild collection %s: %w", name, err)
	}
	metrics.IndexedChunksTotal.WithLabelValues(name, "rebuild").Add(float64(len(chunks)))

	s.logger.Info("Collection rebuilt",
		zap.String("collection", name),
		zap.String("generation", col.Generation),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", col.ChunkCount),
		zap.Int("dimensions", col.Dimensions),
		zap.Stringer("chunking", col.Chunking),
		zap.Duration("duration", time.Since(start)),
	)
	return col, nil
}

// Upsert adds or updates the chunks of docs in an existing or new collection.
// The collection's chunking parameters, model and dimensions must match.
func (s *Service) Upsert(ctx context.Context, name string, docs []domain.Document) (domain.Collection, error) {
	chunks, err := s.prepare(ctx, docs)
	if err != nil {
		return domain.Collection{}, err
	}
	dims := len(chunks[0].Embedding)

	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	col, created, err := s.repo.EnsureCollection(ctx, s.spec(name, dims))
	if err != nil {
		return domain.Collection{}, fmt.Errorf("ensure collection %s: %w", name, err)
	}
	if !created {
		if err := s.checkCompatible(col, dims); err != nil {
			return domain.Collection{}, err
		}
	}

	col, err = s.repo.Upsert(ctx, name, chunks)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("upsert collection %s: %w", name, err)
	}
	metrics.IndexedChunksTotal.WithLabelValues(name, "upsert").Add(float64(len(chunks)))
	return col, nil
}

// Query returns at most k nearest chunks. The collection must have been indexed
// with this service's embedding model.
func (s *Service) Query(ctx context.Context, name string, vector []float32, k int) ([]domain.Hit, error) {
	l := s.lock(name)
	l.RLock()
	defer l.RUnlock()

	col, err := s.repo.GetCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", name, err)
	}
	if err := col.CheckModel(s.opts.Model); err != nil {
		return nil, err
	}

	hits, err := s.repo.Query(ctx, name, vector, k)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", name, err)
	}
	return hits, nil
}

// Stats returns collection metadata.
func (s *Service) Stats(ctx context.Context, name string) (domain.Collection, error) {
	l := s.lock(name)
	l.RLock()
	defer l.RUnlock()

	col, err := s.repo.GetCollection(ctx, name)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("get collection %s: %w", name, err)
	}
	return col, nil
}

// Sample returns the first n chunks of a collection in insertion order.
func (s *Service) Sample(ctx context.Context, name string, n int) ([]domain.Hit, error) {
	l := s.lock(name)
	l.RLock()
	defer l.RUnlock()

	hits, err := s.repo.Sample(ctx, name, n)
	if err != nil {
		return nil, fmt.Errorf("sample collection %s: %w", name, err)
	}
	return hits, nil
}

func (s *Service) spec(name string, dims int) domain.CollectionSpec {
	return domain.CollectionSpec{
		Name:       name,
		Model:      s.opts.Model,
		Dimensions: dims,
		Chunking:   s.chunker.Params(),
	}
}

func (s *Service) checkCompatible(col domain.Collection, dims int) error {
	if col.Chunking != s.chunker.Params() {
		return fmt.Errorf("collection %s chunked with %s, got %s; rebuild required: %w",
			col.Name, col.Chunking, s.chunker.Params(), domain.ErrChunkingMismatch)
	}
	if err := col.CheckModel(s.opts.Model); err != nil {
		return err
	}
	if col.Dimensions > 0 && col.Dimensions != dims {
		return fmt.Errorf("collection %s has %d dims, embedder produced %d: %w",
			col.Name, col.Dimensions, dims, domain.ErrVectorDimMismatch)
	}
	return nil
}

// prepare chunks every document and embeds the chunks.
func (s *Service) prepare(ctx context.Context, docs []domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for _, doc := range docs {
		parts := s.chunker.Chunk(doc)
		if len(parts) == 0 {
			s.logger.Warn("Skipping empty document", zap.String("doc_id", doc.DocID), zap.String("source", doc.Source))
			continue
		}
		chunks = append(chunks, parts...)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("corpus produced no chunks: %w", domain.ErrInvalidRequest)
	}
	if err := domain.ValidateChunks(chunks, 0); err != nil {
		return nil, err
	}

	if err := s.embedChunks(ctx, chunks); err != nil {
		return nil, err
	}
	if err := domain.ValidateChunks(chunks, len(chunks[0].Embedding)); err != nil {
		return nil, err
	}
	return chunks, nil
}

// embedChunks fills chunk embeddings in batches, running up to Concurrency batches at once.
func (s *Service) embedChunks(ctx context.Context, chunks []domain.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for start := 0; start < len(chunks); start += s.opts.BatchSize {
		batch := chunks[start:min(len(chunks), start+s.opts.BatchSize)]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = batch[i].Text
			}
			res, err := domain.EmbedAll(gctx, s.embed, texts)
			if err != nil {
				metrics.EmbeddingBatchesTotal.WithLabelValues("error").Inc()
				return wrapEmbedding(fmt.Errorf("embed batch at %s: %w", batch[0].Key(), err))
			}
			if len(res.Embeddings) != len(batch) {
				metrics.EmbeddingBatchesTotal.WithLabelValues("error").Inc()
				return fmt.Errorf("embed batch at %s: got %d vectors for %d chunks: %w",
					batch[0].Key(), len(res.Embeddings), len(batch), domain.ErrEmbeddingFailure)
			}
			for i := range batch {
				batch[i].Embedding = res.Embeddings[i]
			}
			metrics.EmbeddingBatchesTotal.WithLabelValues("success").Inc()
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) lock(name string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[name] = l
	}
	return l
}

func wrapEmbedding(err error) error {
	if errors.Is(err, domain.ErrEmbeddingFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrEmbeddingFailure, err)
}
