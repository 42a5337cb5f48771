package domain

import "strings"

// PreviewMaxRunes is the maximum preview length before the ellipsis marker.
const PreviewMaxRunes = 240

// Candidate is a query-scoped retrieval result. The reranker fills RerankScore.
type Candidate struct {
	DocID       string
	ChunkID     int
	Text        string
	Source      string
	Similarity  float64
	RerankScore *float64
	Preview     string
}

// NewCandidate converts a raw index hit into a Candidate with its preview computed once.
func NewCandidate(h Hit) Candidate {
	docID := h.DocID
	if docID == "" {
		docID = "unknown"
	}
	return Candidate{
		DocID:      docID,
		ChunkID:    ParseChunkID(h.ChunkID),
		Text:       h.Text,
		Source:     h.Source,
		Similarity: 1 - h.Distance,
		Preview:    MakePreview(h.Text),
	}
}

// Key returns the candidate identity key.
func (c Candidate) Key() string {
	return ChunkKey(c.DocID, c.ChunkID)
}

// Citation builds a citation pointing at this candidate.
func (c Candidate) Citation() Citation {
	return Citation{DocID: c.DocID, ChunkID: c.ChunkID, Preview: c.Preview}
}

// MakePreview trims text, collapses newlines to spaces and truncates to
// PreviewMaxRunes runes with a trailing ellipsis.
func MakePreview(text string) string {
	return Snippet(text, PreviewMaxRunes)
}

// Snippet is MakePreview with a caller-chosen rune limit.
func Snippet(text string, maxRunes int) string {
	p := strings.ReplaceAll(strings.TrimSpace(text), "\r\n", " ")
	p = strings.ReplaceAll(p, "\n", " ")
	p = strings.ReplaceAll(p, "\r", " ")
	r := []rune(p)
	if len(r) > maxRunes {
		return string(r[:maxRunes]) + "…"
	}
	return p
}
