package answer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// DefaultTemplate is used when no template file is configured or the file is missing.
const DefaultTemplate = `You are an expert assistant answering questions strictly from the provided context snippets.
Rules:
- Use ONLY the provided context to answer.
- If the context is insufficient or unclear, reply exactly: "` + domain.RefusalAnswer + `"
- Do NOT add any external knowledge or assumptions.
- Cite specific context items by their doc_id and chunk_id in an array called "citations".
- Confidence should be a float in [0, 1].
- Return only one JSON object, with no extra commentary, no Markdown, and no code fences.
- The JSON must have exactly these keys: answer (string), citations (array of objects with doc_id and chunk_id), confidence (number).

Question:
{question}

Context snippets (JSONL; each line is a JSON object with doc_id, chunk_id, text):
{context}

Now return the JSON object only.`

// PromptBuilder renders the grounding prompt from a template with {question}
// and {context} placeholders.
type PromptBuilder struct {
	template string
}

// NewPromptBuilder returns a builder over an explicit template.
func NewPromptBuilder(template string) *PromptBuilder {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	return &PromptBuilder{template: template}
}

// LoadPromptBuilder reads the template at path. A missing file (or empty path)
// falls back to DefaultTemplate; fromFile reports which one was used.
func LoadPromptBuilder(path string) (b *PromptBuilder, fromFile bool, err error) {
	if path == "" {
		return NewPromptBuilder(""), false, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewPromptBuilder(""), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read prompt template: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return NewPromptBuilder(""), false, nil
	}
	return NewPromptBuilder(string(data)), true, nil
}

// Template returns the active template text.
func (b *PromptBuilder) Template() string { return b.template }

type contextLine struct {
	DocID   string `json:"doc_id"`
	ChunkID int    `json:"chunk_id"`
	Text    string `json:"text"`
}

// Build renders the prompt. Candidates are serialized one JSON object per line,
// in the given order.
func (b *PromptBuilder) Build(question string, candidates []domain.Candidate) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, c := range candidates {
		if err := enc.Encode(contextLine{DocID: c.DocID, ChunkID: c.ChunkID, Text: c.Text}); err != nil {
			return "", fmt.Errorf("encode context %s: %w", c.Key(), err)
		}
	}
	ctxText := strings.TrimSuffix(buf.String(), "\n")

	r := strings.NewReplacer("{question}", question, "{context}", ctxText)
	return r.Replace(b.template), nil
}
