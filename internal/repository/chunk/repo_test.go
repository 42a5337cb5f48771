package chunk

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/finrag/internal/db"
	"github.com/kailas-cloud/finrag/internal/domain"
)

func testSpec() domain.CollectionSpec {
	return domain.CollectionSpec{
		Name:       "sec_filings",
		Model:      "text-embedding-3-small",
		Dimensions: 2,
		Chunking:   domain.ChunkingParams{Mode: domain.ChunkModeChar, Size: 1000, Overlap: 150},
	}
}

func testChunks(docID string, n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{DocID: docID, ChunkID: i, Text: "t", Source: docID + ".txt", Embedding: []float32{1, 0}}
	}
	return out
}

func TestEnsureCollection(t *testing.T) {
	r, s := newTestRepo()
	ctx := context.Background()

	col, created, err := r.EnsureCollection(ctx, testSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || col.Built() {
		t.Fatalf("expected fresh unbuilt collection, created=%v col=%+v", created, col)
	}
	if s.hashes[metaKey("sec_filings")]["model"] != "text-embedding-3-small" {
		t.Fatalf("meta not written: %v", s.hashes)
	}

	col, created, err = r.EnsureCollection(ctx, testSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("second call must not create")
	}
	if col.Chunking.Size != 1000 || col.Dimensions != 2 {
		t.Errorf("meta not round-tripped: %+v", col)
	}
}

func TestGetCollection_Missing(t *testing.T) {
	r, _ := newTestRepo()
	_, err := r.GetCollection(context.Background(), "nope")
	if !errors.Is(err, domain.ErrCollectionMissing) {
		t.Fatalf("expected ErrCollectionMissing, got %v", err)
	}
}

func TestReplace_SwapsGeneration(t *testing.T) {
	r, s := newTestRepo()
	ctx := context.Background()

	first, err := r.Replace(ctx, testSpec(), testChunks("aapl", 3))
	if err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	if s.keysWithPrefix(chunkPrefix("sec_filings", first.Generation)) != 3 {
		t.Fatal("expected 3 chunk hashes in first generation")
	}
	if got := s.hashes[chunkKey("sec_filings", first.Generation, "aapl_2")]["seq"]; got != "2" {
		t.Errorf("seq = %q, want 2", got)
	}

	second, err := r.Replace(ctx, testSpec(), testChunks("msft", 2))
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	if second.Generation == first.Generation {
		t.Fatal("expected a new generation")
	}
	if s.keysWithPrefix(chunkPrefix("sec_filings", first.Generation)) != 0 {
		t.Error("previous generation keys must be dropped")
	}
	if _, ok := s.indexes[indexName("sec_filings", first.Generation)]; ok {
		t.Error("previous generation index must be dropped")
	}

	col, err := r.GetCollection(ctx, "sec_filings")
	if err != nil {
		t.Fatal(err)
	}
	if col.Generation != second.Generation || col.ChunkCount != 2 {
		t.Fatalf("meta not swapped: %+v", col)
	}
}

func TestReplace_WriteFailureKeepsPrevious(t *testing.T) {
	r, s := newTestRepo()
	ctx := context.Background()

	first, err := r.Replace(ctx, testSpec(), testChunks("aapl", 2))
	if err != nil {
		t.Fatal(err)
	}

	s.hsetMultiErr = errors.New("connection reset")
	_, err = r.Replace(ctx, testSpec(), testChunks("msft", 2))
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}

	col, err := r.GetCollection(ctx, "sec_filings")
	if err != nil {
		t.Fatal(err)
	}
	if col.Generation != first.Generation {
		t.Fatalf("generation pointer moved on failed rebuild: %s", col.Generation)
	}
	if len(s.indexes) != 1 {
		t.Fatalf("staged index not cleaned up: %v", s.indexes)
	}
}

func TestReplace_CreateIndexFailure(t *testing.T) {
	r, s := newTestRepo()
	s.createIndexFn = func(_ *db.IndexDefinition) error { return errors.New("boom") }

	_, err := r.Replace(context.Background(), testSpec(), testChunks("aapl", 1))
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if _, err := r.GetCollection(context.Background(), "sec_filings"); !errors.Is(err, domain.ErrCollectionMissing) {
		t.Fatalf("meta must not be written, got %v", err)
	}
}

func TestUpsert_KeepsSeqOnUpdate(t *testing.T) {
	r, s := newTestRepo()
	ctx := context.Background()

	if _, err := r.Upsert(ctx, "sec_filings", testChunks("a", 1)); !errors.Is(err, domain.ErrCollectionMissing) {
		t.Fatalf("expected ErrCollectionMissing, got %v", err)
	}

	if _, _, err := r.EnsureCollection(ctx, testSpec()); err != nil {
		t.Fatal(err)
	}
	col, err := r.Upsert(ctx, "sec_filings", testChunks("a", 2))
	if err != nil {
		t.Fatal(err)
	}
	if !col.Built() || col.ChunkCount != 2 {
		t.Fatalf("unexpected collection: %+v", col)
	}

	update := testChunks("a", 1)
	update[0].Text = "updated"
	extra := domain.Chunk{DocID: "b", ChunkID: 0, Text: "new", Embedding: []float32{0, 1}}
	col, err = r.Upsert(ctx, "sec_filings", append(update, extra))
	if err != nil {
		t.Fatal(err)
	}
	if col.ChunkCount != 3 {
		t.Fatalf("chunk count = %d, want 3", col.ChunkCount)
	}

	a0 := s.hashes[chunkKey("sec_filings", col.Generation, "a_0")]
	if a0["text"] != "updated" || a0["seq"] != "0" {
		t.Errorf("a_0 = %v", a0)
	}
	if got := s.hashes[chunkKey("sec_filings", col.Generation, "b_0")]["seq"]; got != "2" {
		t.Errorf("b_0 seq = %q, want 2", got)
	}
}

func TestQuery_Missing(t *testing.T) {
	r, _ := newTestRepo()
	ctx := context.Background()

	if _, err := r.Query(ctx, "sec_filings", []float32{1, 0}, 3); !errors.Is(err, domain.ErrCollectionMissing) {
		t.Fatalf("expected ErrCollectionMissing, got %v", err)
	}
	if _, _, err := r.EnsureCollection(ctx, testSpec()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Query(ctx, "sec_filings", []float32{1, 0}, 3); !errors.Is(err, domain.ErrCollectionMissing) {
		t.Fatalf("expected ErrCollectionMissing before build, got %v", err)
	}
}

func TestQuery_SortsByDistanceThenSeq(t *testing.T) {
	r, s := newTestRepo()
	ctx := context.Background()
	col, err := r.Replace(ctx, testSpec(), testChunks("aapl", 3))
	if err != nil {
		t.Fatal(err)
	}

	var gotQuery *db.KNNQuery
	s.searchFn = func(q *db.KNNQuery) (*db.SearchResult, error) {
		gotQuery = q
		return &db.SearchResult{Total: 3, Entries: []db.SearchEntry{
			{Key: "k2", Score: 0.2, Fields: map[string]string{"doc_id": "aapl", "chunk_id": "2", "seq": "2"}},
			{Key: "k1", Score: 0.1, Fields: map[string]string{"doc_id": "aapl", "chunk_id": "1", "seq": "1"}},
			{Key: "k0", Score: 0.2, Fields: map[string]string{"doc_id": "aapl", "chunk_id": "0", "seq": "0"}},
		}}, nil
	}

	hits, err := r.Query(ctx, "sec_filings", []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if gotQuery.IndexName != indexName("sec_filings", col.Generation) || gotQuery.K != 3 {
		t.Errorf("unexpected query: %+v", gotQuery)
	}
	want := []string{"1", "0", "2"}
	for i, h := range hits {
		if h.ChunkID != want[i] {
			t.Errorf("hit %d chunk_id = %s, want %s", i, h.ChunkID, want[i])
		}
	}
	if hits[0].Distance != 0.1 {
		t.Errorf("distance = %f", hits[0].Distance)
	}
}

func TestQuery_DimMismatch(t *testing.T) {
	r, _ := newTestRepo()
	ctx := context.Background()
	if _, err := r.Replace(ctx, testSpec(), testChunks("aapl", 1)); err != nil {
		t.Fatal(err)
	}
	_, err := r.Query(ctx, "sec_filings", []float32{1, 0, 0}, 3)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestQuery_StoreError(t *testing.T) {
	r, s := newTestRepo()
	ctx := context.Background()
	if _, err := r.Replace(ctx, testSpec(), testChunks("aapl", 1)); err != nil {
		t.Fatal(err)
	}
	s.searchFn = func(_ *db.KNNQuery) (*db.SearchResult, error) {
		return nil, &db.Error{Op: db.OpSearchKNN, Err: errors.New("timeout")}
	}
	_, err := r.Query(ctx, "sec_filings", []float32{1, 0}, 3)
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestSample_QueriesBySeq(t *testing.T) {
	r, s := newTestRepo()
	ctx := context.Background()
	if _, err := r.Replace(ctx, testSpec(), testChunks("aapl", 5)); err != nil {
		t.Fatal(err)
	}

	var gotQuery string
	s.listFn = func(_, query string, _, _ int) (*db.SearchResult, error) {
		gotQuery = query
		return &db.SearchResult{Entries: []db.SearchEntry{
			{Fields: map[string]string{"doc_id": "aapl", "chunk_id": "1", "seq": "1"}},
			{Fields: map[string]string{"doc_id": "aapl", "chunk_id": "0", "seq": "0"}},
		}}, nil
	}
	hits, err := r.Sample(ctx, "sec_filings", 2)
	if err != nil {
		t.Fatal(err)
	}
	if gotQuery != "@seq:[0 (2]" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(hits) != 2 || hits[0].ChunkID != "0" {
		t.Fatalf("unexpected sample: %+v", hits)
	}
}

func TestPing_Error(t *testing.T) {
	r, s := newTestRepo()
	s.pingErr = errors.New("refused")
	if err := r.Ping(context.Background()); !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}
