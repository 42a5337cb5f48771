package domain

import "fmt"

// KeyPrefix is the namespace for every key finrag writes to a shared store.
const KeyPrefix = "finrag:"

// ChunkMode selects how the chunker measures window size.
type ChunkMode string

const (
	// ChunkModeChar windows over raw character offsets.
	ChunkModeChar ChunkMode = "char"
	// ChunkModeWord windows over whitespace-delimited tokens.
	ChunkModeWord ChunkMode = "word"
)

// ChunkingParams identify a chunk generation. Chunk identities are only stable
// while these stay unchanged.
type ChunkingParams struct {
	Mode    ChunkMode `json:"mode"`
	Size    int       `json:"size"`
	Overlap int       `json:"overlap"`
}

func (p ChunkingParams) String() string {
	return fmt.Sprintf("%s/%d/%d", p.Mode, p.Size, p.Overlap)
}

// CollectionSpec is what a caller asks for when creating or rebuilding a collection.
type CollectionSpec struct {
	Name       string
	Model      string // embedding model identifier, validated at query time
	Dimensions int
	Chunking   ChunkingParams
}

// Collection is the persisted metadata of one named corpus generation.
type Collection struct {
	Name       string
	Model      string
	Dimensions int
	Chunking   ChunkingParams
	Generation string
	ChunkCount int
	CreatedAt  int64 // unix millis
}

// Built reports whether the collection has a populated generation.
func (c Collection) Built() bool {
	return c.Generation != ""
}

// CheckModel returns an EmbeddingModelMismatchError when model differs from the indexed one.
func (c Collection) CheckModel(model string) error {
	if c.Model != "" && model != "" && c.Model != model {
		return NewEmbeddingModelMismatch(c.Model, model)
	}
	return nil
}
