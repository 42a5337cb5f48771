package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/kailas-cloud/finrag/internal/domain"
)

const collectionColumns = `name, model, dimensions, chunk_mode, chunk_size, chunk_overlap, generation, created_at`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EnsureCollection creates the collection row when missing. An existing
// collection is returned unchanged with created=false.
func (s *Store) EnsureCollection(
	ctx context.Context, spec domain.CollectionSpec,
) (domain.Collection, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (name, model, dimensions, chunk_mode, chunk_size, chunk_overlap, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, spec.Name, spec.Model, spec.Dimensions,
		string(spec.Chunking.Mode), spec.Chunking.Size, spec.Chunking.Overlap,
		s.now().UnixMilli())
	if err != nil {
		return domain.Collection{}, false, unavailable("ensure collection", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Collection{}, false, unavailable("ensure collection", err)
	}

	col, err := s.GetCollection(ctx, spec.Name)
	if err != nil {
		return domain.Collection{}, false, err
	}
	return col, n > 0, nil
}

// GetCollection loads collection metadata with its current chunk count.
func (s *Store) GetCollection(ctx context.Context, name string) (domain.Collection, error) {
	return getCollection(ctx, s.db, name)
}

func getCollection(ctx context.Context, q queryer, name string) (domain.Collection, error) {
	var (
		col  domain.Collection
		mode string
	)
	err := q.QueryRowContext(ctx,
		"SELECT "+collectionColumns+" FROM collections WHERE name = ?", name,
	).Scan(&col.Name, &col.Model, &col.Dimensions, &mode,
		&col.Chunking.Size, &col.Chunking.Overlap, &col.Generation, &col.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Collection{}, fmt.Errorf("collection %q: %w", name, domain.ErrCollectionMissing)
	}
	if err != nil {
		return domain.Collection{}, unavailable("get collection", err)
	}
	col.Chunking.Mode = domain.ChunkMode(mode)

	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE collection = ?", name,
	).Scan(&col.ChunkCount); err != nil {
		return domain.Collection{}, unavailable("count chunks", err)
	}
	return col, nil
}

// Replace swaps the whole content of a collection inside one transaction.
// Readers see either the previous generation or the new one, never a mix.
func (s *Store) Replace(
	ctx context.Context, spec domain.CollectionSpec, chunks []domain.Chunk,
) (domain.Collection, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Collection{}, unavailable("begin rebuild", err)
	}
	defer func() { _ = tx.Rollback() }()

	generation := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO collections
			(name, model, dimensions, chunk_mode, chunk_size, chunk_overlap, generation, next_seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			model = excluded.model,
			dimensions = excluded.dimensions,
			chunk_mode = excluded.chunk_mode,
			chunk_size = excluded.chunk_size,
			chunk_overlap = excluded.chunk_overlap,
			generation = excluded.generation,
			next_seq = excluded.next_seq,
			created_at = excluded.created_at
	`, spec.Name, spec.Model, spec.Dimensions,
		string(spec.Chunking.Mode), spec.Chunking.Size, spec.Chunking.Overlap,
		generation, len(chunks), s.now().UnixMilli())
	if err != nil {
		return domain.Collection{}, unavailable("write collection", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ?", spec.Name); err != nil {
		return domain.Collection{}, unavailable("drop previous generation", err)
	}

	if err := insertChunks(ctx, tx, spec.Name, chunks, 0, false); err != nil {
		return domain.Collection{}, err
	}

	col, err := getCollection(ctx, tx, spec.Name)
	if err != nil {
		return domain.Collection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Collection{}, unavailable("commit rebuild", err)
	}
	return col, nil
}

// Upsert inserts or updates chunks of an existing collection. Updated chunks keep
// their original insertion order.
func (s *Store) Upsert(ctx context.Context, name string, chunks []domain.Chunk) (domain.Collection, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Collection{}, unavailable("begin upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		nextSeq    int64
		generation string
	)
	err = tx.QueryRowContext(ctx,
		"SELECT next_seq, generation FROM collections WHERE name = ?", name,
	).Scan(&nextSeq, &generation)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Collection{}, fmt.Errorf("collection %q: %w", name, domain.ErrCollectionMissing)
	}
	if err != nil {
		return domain.Collection{}, unavailable("read collection", err)
	}

	if err := insertChunks(ctx, tx, name, chunks, nextSeq, true); err != nil {
		return domain.Collection{}, err
	}
	if generation == "" {
		generation = uuid.NewString()
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE collections SET next_seq = ?, generation = ? WHERE name = ?",
		nextSeq+int64(len(chunks)), generation, name,
	); err != nil {
		return domain.Collection{}, unavailable("advance sequence", err)
	}

	col, err := getCollection(ctx, tx, name)
	if err != nil {
		return domain.Collection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Collection{}, unavailable("commit upsert", err)
	}
	return col, nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, collection string, chunks []domain.Chunk, seq int64, upsert bool) error {
	query := `INSERT INTO chunks (collection, doc_id, chunk_id, seq, text, source, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if upsert {
		query += ` ON CONFLICT(collection, doc_id, chunk_id) DO UPDATE SET
			text = excluded.text, source = excluded.source, embedding = excluded.embedding`
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return unavailable("prepare chunk insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range chunks {
		c := &chunks[i]
		if _, err := stmt.ExecContext(ctx,
			collection, c.DocID, c.ChunkID, seq+int64(i), c.Text, c.Source,
			domain.EncodeVector(c.Embedding),
		); err != nil {
			return unavailable("insert chunk "+c.Key(), err)
		}
	}
	return nil
}

// Query returns at most k chunks ordered by ascending cosine distance to vector.
// Equal distances keep insertion order.
func (s *Store) Query(ctx context.Context, name string, vector []float32, k int) ([]domain.Hit, error) {
	col, err := s.GetCollection(ctx, name)
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

	hits, err := s.scan(ctx, name, -1, vector)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Sample returns the first n chunks in insertion order.
func (s *Store) Sample(ctx context.Context, name string, n int) ([]domain.Hit, error) {
	if _, err := s.GetCollection(ctx, name); err != nil {
		return nil, err
	}
	return s.scan(ctx, name, n, nil)
}

// scan reads chunks ordered by seq. A non-nil vector fills Distance.
func (s *Store) scan(ctx context.Context, name string, limit int, vector []float32) ([]domain.Hit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, chunk_id, seq, text, source, embedding
		FROM chunks WHERE collection = ? ORDER BY seq LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, unavailable("query chunks", err)
	}
	defer func() { _ = rows.Close() }()

	hits := []domain.Hit{}
	for rows.Next() {
		var (
			h       domain.Hit
			chunkID int64
			blob    []byte
		)
		if err := rows.Scan(&h.DocID, &chunkID, &h.Seq, &h.Text, &h.Source, &blob); err != nil {
			return nil, unavailable("scan chunk", err)
		}
		h.ChunkID = fmt.Sprint(chunkID)
		if vector != nil {
			emb, err := domain.DecodeVector(blob)
			if err != nil {
				return nil, unavailable("decode embedding", err)
			}
			h.Distance = domain.CosineDistance(vector, emb)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate chunks", err)
	}
	return hits, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("sqlite: %s: %w: %w", op, domain.ErrIndexUnavailable, err)
}
