package answer_test

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"unicode"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/chunker"
	"github.com/kailas-cloud/finrag/internal/db/sqlite"
	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/usecase/answer"
	"github.com/kailas-cloud/finrag/internal/usecase/index"
	"github.com/kailas-cloud/finrag/internal/usecase/rerank"
	"github.com/kailas-cloud/finrag/internal/usecase/retrieval"
)

// vocabEmbedder is a deterministic bag-of-words embedder: every new token gets
// its own dimension.
type vocabEmbedder struct {
	mu    sync.Mutex
	vocab map[string]int
	dims  int
}

func newVocabEmbedder(dims int) *vocabEmbedder {
	return &vocabEmbedder{vocab: make(map[string]int), dims: dims}
}

func (e *vocabEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := make([]float32, e.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		i, ok := e.vocab[w]
		if !ok {
			i = len(e.vocab)
			e.vocab[w] = i
		}
		if i < e.dims {
			v[i]++
		}
	}
	return domain.EmbeddingResult{Embedding: v}, nil
}

var firstContextLine = regexp.MustCompile(`\{"doc_id":"([^"]+)","chunk_id":(\d+)`)

// citingGenerator answers with a citation of the first context record.
type citingGenerator struct{}

func (citingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	m := firstContextLine.FindStringSubmatch(prompt)
	if m == nil {
		return "I don't know based on the provided documents.", nil
	}
	return fmt.Sprintf("```json\n{\"answer\":\"Cloud subscriptions and hardware.\",\"citations\":[{\"doc_id\":%q,\"chunk_id\":%s}],\"confidence\":0.8}\n```", m[1], m[2]), nil
}

func TestAnswer_EndToEnd(t *testing.T) {
	ctx := context.Background()

	store, err := sqlite.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ch, err := chunker.New(domain.ChunkingParams{Mode: domain.ChunkModeChar, Size: 1000, Overlap: 150})
	if err != nil {
		t.Fatal(err)
	}
	emb := domain.NewNormalizingEmbedder(newVocabEmbedder(128))
	idx := index.New(store, emb, ch, index.Options{Model: "vocab"}, zap.NewNop())

	docs := []domain.Document{
		{DocID: "risk", Text: "Supply chain disruptions may affect operations in Asia.", Source: "risk.txt"},
		{DocID: "aapl", Text: "Revenue grew due to cloud subscriptions and hardware sales.", Source: "aapl.txt"},
		{DocID: "board", Text: "Directors get elected annually by shareholders.", Source: "board.txt"},
		{DocID: "legal", Text: "Litigation costs increased during fiscal 2023.", Source: "legal.txt"},
	}
	if _, err := idx.Build(ctx, "sec_filings", docs); err != nil {
		t.Fatalf("build: %v", err)
	}

	svc := answer.New(
		retrieval.New(idx, emb, "sec_filings"),
		rerank.New(nil, rerank.DefaultKeepTop),
		nil,
		citingGenerator{},
		answer.Options{},
	)

	ans, err := svc.Answer(ctx, "What are the main revenue drivers?", 0)
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, c := range ans.Citations {
		if c.DocID == "aapl" && c.ChunkID == 0 {
			found = true
			if !strings.HasPrefix(c.Preview, "Revenue grew due to cloud subscriptions and hardware sales") {
				t.Errorf("preview = %q", c.Preview)
			}
		}
	}
	if !found {
		t.Fatalf("expected aapl/0 among citations, got %+v", ans.Citations)
	}
	if ans.Confidence != 0.8 {
		t.Errorf("confidence = %v", ans.Confidence)
	}
}

func TestAnswer_EndToEndWithoutGenerator(t *testing.T) {
	ctx := context.Background()

	store, err := sqlite.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ch, err := chunker.New(domain.ChunkingParams{Mode: domain.ChunkModeWord, Size: 6, Overlap: 2})
	if err != nil {
		t.Fatal(err)
	}
	emb := domain.NewNormalizingEmbedder(newVocabEmbedder(128))
	idx := index.New(store, emb, ch, index.Options{Model: "vocab"}, zap.NewNop())

	docs := []domain.Document{
		{DocID: "aapl", Text: "Revenue grew due to cloud subscriptions and hardware sales. Litigation stayed flat.", Source: "aapl.txt"},
		{DocID: "risk", Text: "Supply chain disruptions may affect operations in Asia.", Source: "risk.txt"},
	}
	if _, err := idx.Build(ctx, "sec_filings", docs); err != nil {
		t.Fatalf("build: %v", err)
	}

	svc := answer.New(retrieval.New(idx, emb, "sec_filings"), rerank.New(nil, 0), nil, nil, answer.Options{})
	ans, err := svc.Answer(ctx, "What are the main revenue drivers?", 3)
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != domain.RefusalAnswer || ans.Confidence != 0 {
		t.Fatalf("unexpected answer: %+v", ans)
	}
	if len(ans.Citations) == 0 || ans.Citations[0].DocID != "aapl" || ans.Citations[0].ChunkID != 0 {
		t.Fatalf("expected aapl/0 first, got %+v", ans.Citations)
	}
}
