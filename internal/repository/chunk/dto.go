package chunk

import (
	"fmt"
	"strconv"

	"github.com/kailas-cloud/finrag/internal/db"
	"github.com/kailas-cloud/finrag/internal/domain"
)

// Valkey key patterns:
//   finrag:{collection}:meta
//   finrag:{collection}:{generation}:idx
//   finrag:{collection}:{generation}:chunk:{doc_id}_{chunk_id}

func metaKey(name string) string {
	return fmt.Sprintf("%s%s:meta", domain.KeyPrefix, name)
}

func indexName(name, gen string) string {
	return fmt.Sprintf("%s%s:%s:idx", domain.KeyPrefix, name, gen)
}

func chunkPrefix(name, gen string) string {
	return fmt.Sprintf("%s%s:%s:chunk:", domain.KeyPrefix, name, gen)
}

func chunkKey(name, gen, id string) string {
	return chunkPrefix(name, gen) + id
}

func buildIndex(name, gen string, dim int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	return db.NewIndex(indexName(name, gen), chunkPrefix(name, gen)).
		Tag("doc_id").
		Numeric("chunk_id", "seq").
		Vector("vector", db.HNSW{Dim: dim, M: hnsw.M, EFConstruct: hnsw.EFConstruct}).
		Build()
}

// metaToHash converts collection metadata to a map for HSET.
func metaToHash(col domain.Collection, nextSeq int64) map[string]string {
	return map[string]string{
		"name":          col.Name,
		"model":         col.Model,
		"dimensions":    strconv.Itoa(col.Dimensions),
		"chunk_mode":    string(col.Chunking.Mode),
		"chunk_size":    strconv.Itoa(col.Chunking.Size),
		"chunk_overlap": strconv.Itoa(col.Chunking.Overlap),
		"generation":    col.Generation,
		"chunk_count":   strconv.Itoa(col.ChunkCount),
		"next_seq":      strconv.FormatInt(nextSeq, 10),
		"created_at":    strconv.FormatInt(col.CreatedAt, 10),
	}
}

// metaFromHash hydrates collection metadata from an HGETALL result map.
func metaFromHash(m map[string]string) (domain.Collection, int64, error) {
	col := domain.Collection{
		Name:       m["name"],
		Model:      m["model"],
		Generation: m["generation"],
		Chunking:   domain.ChunkingParams{Mode: domain.ChunkMode(m["chunk_mode"])},
	}

	var err error
	ints := []struct {
		field string
		dst   *int
	}{
		{"dimensions", &col.Dimensions},
		{"chunk_size", &col.Chunking.Size},
		{"chunk_overlap", &col.Chunking.Overlap},
		{"chunk_count", &col.ChunkCount},
	}
	for _, f := range ints {
		if *f.dst, err = atoiField(m, f.field); err != nil {
			return domain.Collection{}, 0, err
		}
	}

	if col.CreatedAt, err = parseInt64Field(m, "created_at"); err != nil {
		return domain.Collection{}, 0, err
	}
	nextSeq, err := parseInt64Field(m, "next_seq")
	if err != nil {
		return domain.Collection{}, 0, err
	}
	return col, nextSeq, nil
}

func atoiField(m map[string]string, field string) (int, error) {
	n, err := parseInt64Field(m, field)
	return int(n), err
}

func parseInt64Field(m map[string]string, field string) (int64, error) {
	s := m[field]
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return n, nil
}

// chunkToHash converts a chunk to a map for HSET. The vector is stored as
// little-endian float32 bytes, the layout FT.SEARCH expects.
func chunkToHash(c *domain.Chunk) map[string]string {
	return map[string]string{
		"doc_id":   c.DocID,
		"chunk_id": strconv.Itoa(c.ChunkID),
		"text":     c.Text,
		"source":   c.Source,
		"vector":   string(domain.EncodeVector(c.Embedding)),
	}
}

func entriesToHits(entries []db.SearchEntry, withDistance bool) []domain.Hit {
	hits := make([]domain.Hit, 0, len(entries))
	for _, e := range entries {
		h := domain.Hit{
			DocID:   e.Fields["doc_id"],
			ChunkID: e.Fields["chunk_id"],
			Text:    e.Fields["text"],
			Source:  e.Fields["source"],
		}
		if withDistance {
			h.Distance = e.Score
		}
		if seq, err := strconv.ParseInt(e.Fields["seq"], 10, 64); err == nil {
			h.Seq = seq
		}
		hits = append(hits, h)
	}
	return hits
}
