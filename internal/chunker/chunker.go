// Package chunker splits document text into overlapping fixed-size windows.
package chunker

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// Default windows, matching the corpus producers.
var (
	DefaultCharParams = domain.ChunkingParams{Mode: domain.ChunkModeChar, Size: 1000, Overlap: 150}
	DefaultWordParams = domain.ChunkingParams{Mode: domain.ChunkModeWord, Size: 800, Overlap: 120}
)

// Chunker is a deterministic window splitter bound to one set of parameters.
type Chunker struct {
	params domain.ChunkingParams
}

// New validates params and returns a Chunker.
func New(params domain.ChunkingParams) (*Chunker, error) {
	switch params.Mode {
	case domain.ChunkModeChar, domain.ChunkModeWord:
	default:
		return nil, fmt.Errorf("unknown chunk mode %q: %w", params.Mode, domain.ErrInvalidRequest)
	}
	if params.Size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d: %w", params.Size, domain.ErrInvalidRequest)
	}
	if params.Overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d: %w", params.Overlap, domain.ErrInvalidRequest)
	}
	return &Chunker{params: params}, nil
}

// Params returns the chunking parameters this chunker was built with.
func (c *Chunker) Params() domain.ChunkingParams { return c.params }

// Split returns the ordered window texts for text. Empty windows are dropped.
func (c *Chunker) Split(text string) []string {
	return Split(text, c.params)
}

// Chunk splits a document into chunks with sequential 0-based ids.
func (c *Chunker) Chunk(doc domain.Document) []domain.Chunk {
	parts := c.Split(doc.Text)
	chunks := make([]domain.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = domain.Chunk{DocID: doc.DocID, ChunkID: i, Text: p, Source: doc.Source}
	}
	return chunks
}

// Split windows text according to params. The step is size-overlap, or size when
// overlap >= size. Splitting stops once a window reaches the end of the input.
func Split(text string, params domain.ChunkingParams) []string {
	if params.Size <= 0 {
		return nil
	}
	text = normalizeNewlines(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	step := params.Size - params.Overlap
	if step <= 0 {
		step = params.Size
	}

	if params.Mode == domain.ChunkModeWord {
		return windows(strings.Fields(text), params.Size, step, func(w []string) string {
			return strings.Join(w, " ")
		})
	}
	return windows([]rune(text), params.Size, step, func(r []rune) string {
		return string(r)
	})
}

func windows[T any](units []T, size, step int, join func([]T) string) []string {
	n := len(units)
	var out []string
	for start := 0; start < n; start += step {
		end := min(n, start+size)
		if chunk := strings.TrimSpace(join(units[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == n {
			break
		}
	}
	return out
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
