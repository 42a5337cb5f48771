package chunk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/db"
	"github.com/kailas-cloud/finrag/internal/domain"
)

// writeBatch bounds the number of HSET commands per pipeline.
const writeBatch = 256

var returnFields = []string{"doc_id", "chunk_id", "seq", "text", "source"}

// store is the consumer interface for the chunk index (ISP).
//
//nolint:interfacebloat // rebuild needs hash + index management + search
type store interface {
	Ping(ctx context.Context) error
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	ExistsMulti(ctx context.Context, keys []string) ([]bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string, deleteDocs bool) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo is the Redis/Valkey backed vector index. Every rebuild writes a new
// generation (index + key prefix) and then swaps the generation pointer in the
// collection meta hash.
type Repo struct {
	store  store
	hnsw   HNSWConfig
	logger *zap.Logger
	now    func() time.Time
}

// New creates a chunk repository.
func New(s store, logger *zap.Logger) *Repo {
	return &Repo{
		store:  s,
		hnsw:   HNSWConfig{M: 16, EFConstruct: 200},
		logger: logger,
		now:    time.Now,
	}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// Ping checks the store connection.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// EnsureCollection writes the meta hash when missing. An existing collection is
// returned unchanged with created=false.
func (r *Repo) EnsureCollection(
	ctx context.Context, spec domain.CollectionSpec,
) (domain.Collection, bool, error) {
	col, err := r.GetCollection(ctx, spec.Name)
	if err == nil {
		return col, false, nil
	}
	if !errors.Is(err, domain.ErrCollectionMissing) {
		return domain.Collection{}, false, err
	}

	col = domain.Collection{
		Name:       spec.Name,
		Model:      spec.Model,
		Dimensions: spec.Dimensions,
		Chunking:   spec.Chunking,
		CreatedAt:  r.now().UnixMilli(),
	}
	if err := r.store.HSet(ctx, metaKey(spec.Name), metaToHash(col, 0)); err != nil {
		return domain.Collection{}, false, unavailable("hset meta "+spec.Name, err)
	}
	return col, true, nil
}

// GetCollection reads the collection meta hash.
func (r *Repo) GetCollection(ctx context.Context, name string) (domain.Collection, error) {
	col, _, err := r.readMeta(ctx, name)
	return col, err
}

func (r *Repo) readMeta(ctx context.Context, name string) (domain.Collection, int64, error) {
	m, err := r.store.HGetAll(ctx, metaKey(name))
	if err != nil {
		return domain.Collection{}, 0, unavailable("hgetall meta "+name, err)
	}
	if len(m) == 0 {
		return domain.Collection{}, 0, fmt.Errorf("collection %q: %w", name, domain.ErrCollectionMissing)
	}
	return metaFromHash(m)
}

// Replace stages chunks into a fresh generation and swaps it in. On failure the
// staged generation is dropped and the previous one stays live.
func (r *Repo) Replace(
	ctx context.Context, spec domain.CollectionSpec, chunks []domain.Chunk,
) (domain.Collection, error) {
	prev, _, err := r.readMeta(ctx, spec.Name)
	if err != nil && !errors.Is(err, domain.ErrCollectionMissing) {
		return domain.Collection{}, err
	}

	gen := uuid.NewString()
	if err := r.createGeneration(ctx, spec.Name, gen, spec.Dimensions); err != nil {
		return domain.Collection{}, err
	}

	if err := r.writeChunks(ctx, spec.Name, gen, chunks, 0); err != nil {
		return domain.Collection{}, errors.Join(err, r.dropGeneration(ctx, spec.Name, gen))
	}

	col := domain.Collection{
		Name:       spec.Name,
		Model:      spec.Model,
		Dimensions: spec.Dimensions,
		Chunking:   spec.Chunking,
		Generation: gen,
		ChunkCount: len(chunks),
		CreatedAt:  r.now().UnixMilli(),
	}
	if err := r.store.HSet(ctx, metaKey(spec.Name), metaToHash(col, int64(len(chunks)))); err != nil {
		return domain.Collection{}, errors.Join(
			unavailable("swap generation "+spec.Name, err),
			r.dropGeneration(ctx, spec.Name, gen),
		)
	}

	if prev.Generation != "" && prev.Generation != gen {
		if err := r.dropGeneration(ctx, spec.Name, prev.Generation); err != nil {
			r.logger.Warn("Failed to drop previous generation",
				zap.String("collection", spec.Name),
				zap.String("generation", prev.Generation),
				zap.Error(err))
		}
	}
	return col, nil
}

// Upsert writes chunks into the live generation, creating one if the collection
// was never built. Existing chunks keep their insertion sequence.
func (r *Repo) Upsert(ctx context.Context, name string, chunks []domain.Chunk) (domain.Collection, error) {
	col, nextSeq, err := r.readMeta(ctx, name)
	if err != nil {
		return domain.Collection{}, err
	}

	if !col.Built() {
		col.Generation = uuid.NewString()
		if err := r.createGeneration(ctx, name, col.Generation, col.Dimensions); err != nil {
			return domain.Collection{}, err
		}
	}

	keys := make([]string, len(chunks))
	for i := range chunks {
		keys[i] = chunkKey(name, col.Generation, chunks[i].Key())
	}
	exists, err := r.existing(ctx, keys)
	if err != nil {
		return domain.Collection{}, err
	}

	items := make([]db.HashSetItem, len(chunks))
	added := 0
	for i := range chunks {
		fields := chunkToHash(&chunks[i])
		if !exists[i] {
			fields["seq"] = strconv.FormatInt(nextSeq+int64(added), 10)
			added++
		}
		items[i] = db.HashSetItem{Key: keys[i], Fields: fields}
	}
	if err := r.flush(ctx, items); err != nil {
		return domain.Collection{}, err
	}

	col.ChunkCount += added
	if err := r.store.HSet(ctx, metaKey(name), metaToHash(col, nextSeq+int64(added))); err != nil {
		return domain.Collection{}, unavailable("hset meta "+name, err)
	}
	return col, nil
}

// Query runs a KNN search against the live generation. Results are ordered by
// ascending distance, ties by insertion sequence.
func (r *Repo) Query(ctx context.Context, name string, vector []float32, k int) ([]domain.Hit, error) {
	col, err := r.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if !col.Built() {
		return nil, fmt.Errorf("collection %q has no generation: %w", name, domain.ErrCollectionMissing)
	}
	if col.Dimensions > 0 && len(vector) != col.Dimensions {
		return nil, fmt.Errorf("query vector has %d dims, collection %d: %w",
			len(vector), col.Dimensions, domain.ErrVectorDimMismatch)
	}
	if k <= 0 {
		return []domain.Hit{}, nil
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexName(name, col.Generation),
		Vector:       vector,
		K:            k,
		ReturnFields: returnFields,
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, fmt.Errorf("collection %q index: %w", name, domain.ErrCollectionMissing)
		}
		return nil, unavailable("knn search "+name, err)
	}

	hits := entriesToHits(sr.Entries, true)
	sortHits(hits)
	return hits, nil
}

// Sample returns the first n chunks in insertion order.
func (r *Repo) Sample(ctx context.Context, name string, n int) ([]domain.Hit, error) {
	col, err := r.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if !col.Built() || n <= 0 {
		return []domain.Hit{}, nil
	}

	query := fmt.Sprintf("@seq:[0 (%d]", n)
	sr, err := r.store.SearchList(ctx, indexName(name, col.Generation), query, 0, n, returnFields)
	if err != nil {
		return nil, unavailable("sample "+name, err)
	}
	hits := entriesToHits(sr.Entries, false)
	sortHits(hits)
	return hits, nil
}

func (r *Repo) createGeneration(ctx context.Context, name, gen string, dim int) error {
	def, err := buildIndex(name, gen, dim, r.hnsw)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		return unavailable("create index "+def.Name, err)
	}
	return nil
}

func (r *Repo) dropGeneration(ctx context.Context, name, gen string) error {
	err := r.store.DropIndex(ctx, indexName(name, gen), true)
	if err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop generation %s: %w", gen, err)
	}
	return nil
}

func (r *Repo) writeChunks(ctx context.Context, name, gen string, chunks []domain.Chunk, seq int64) error {
	items := make([]db.HashSetItem, len(chunks))
	for i := range chunks {
		fields := chunkToHash(&chunks[i])
		fields["seq"] = strconv.FormatInt(seq+int64(i), 10)
		items[i] = db.HashSetItem{Key: chunkKey(name, gen, chunks[i].Key()), Fields: fields}
	}
	return r.flush(ctx, items)
}

// existing probes keys in writeBatch-sized pipelines.
func (r *Repo) existing(ctx context.Context, keys []string) ([]bool, error) {
	out := make([]bool, 0, len(keys))
	for start := 0; start < len(keys); start += writeBatch {
		part, err := r.store.ExistsMulti(ctx, keys[start:min(len(keys), start+writeBatch)])
		if err != nil {
			return nil, unavailable("probe chunk keys", err)
		}
		out = append(out, part...)
	}
	return out, nil
}

func (r *Repo) flush(ctx context.Context, items []db.HashSetItem) error {
	for start := 0; start < len(items); start += writeBatch {
		end := min(len(items), start+writeBatch)
		if err := r.store.HSetMulti(ctx, items[start:end]); err != nil {
			return unavailable("hset chunks", err)
		}
	}
	return nil
}

func sortHits(hits []domain.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Seq < hits[j].Seq
	})
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrIndexUnavailable, err)
}
