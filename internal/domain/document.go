package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Document is one source text produced by the ingestion side. Immutable once loaded.
type Document struct {
	DocID  string `json:"doc_id"`
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Chunk is a window of a document's text, the unit of embedding and retrieval.
// Identity is the (DocID, ChunkID) pair.
type Chunk struct {
	DocID     string
	ChunkID   int
	Text      string
	Source    string
	Embedding []float32
}

// Key returns the store key suffix for the chunk, "<doc_id>_<chunk_id>".
func (c Chunk) Key() string {
	return ChunkKey(c.DocID, c.ChunkID)
}

// ChunkKey builds the store key suffix for a (doc_id, chunk_id) pair.
func ChunkKey(docID string, chunkID int) string {
	return docID + "_" + strconv.Itoa(chunkID)
}

// Hit is a raw nearest-neighbor result from the vector index.
type Hit struct {
	DocID    string
	ChunkID  string // raw metadata, coerced by the retriever
	Text     string
	Source   string
	Distance float64
	Seq      int64 // insertion order inside the generation, used for stable tie-breaks
}

// ParseChunkID coerces raw chunk_id metadata to an integer.
// Missing or malformed values yield -1.
func ParseChunkID(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return -1
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	// JSON numbers may arrive as "3.0"
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
		return ChunkIDFromFloat(f)
	}
	return -1
}

// ChunkIDFromFloat truncates f to an int, or returns -1 when f is NaN,
// infinite or outside the int range.
func ChunkIDFromFloat(f float64) int {
	if math.IsNaN(f) || f < math.MinInt || f >= math.MaxInt {
		return -1
	}
	return int(f)
}

// ValidateChunks checks identity uniqueness and vector dimensions before a write.
func ValidateChunks(chunks []Chunk, dim int) error {
	seen := make(map[string]struct{}, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if c.DocID == "" {
			return fmt.Errorf("chunk %d: doc_id is required: %w", i, ErrInvalidRequest)
		}
		if c.ChunkID < 0 {
			return fmt.Errorf("chunk %s: negative chunk_id: %w", c.DocID, ErrInvalidRequest)
		}
		key := c.Key()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate chunk identity %s: %w", key, ErrInvalidRequest)
		}
		seen[key] = struct{}{}
		if dim > 0 && len(c.Embedding) != dim {
			return fmt.Errorf("chunk %s: got %d dims, want %d: %w",
				key, len(c.Embedding), dim, ErrVectorDimMismatch)
		}
	}
	return nil
}
