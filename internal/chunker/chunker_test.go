package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/finrag/internal/domain"
)

func charParams(size, overlap int) domain.ChunkingParams {
	return domain.ChunkingParams{Mode: domain.ChunkModeChar, Size: size, Overlap: overlap}
}

func wordParams(size, overlap int) domain.ChunkingParams {
	return domain.ChunkingParams{Mode: domain.ChunkModeWord, Size: size, Overlap: overlap}
}

func TestSplit_EmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\r\n\t\n"} {
		if got := Split(in, charParams(10, 2)); len(got) != 0 {
			t.Errorf("char Split(%q) = %v, want empty", in, got)
		}
		if got := Split(in, wordParams(10, 2)); len(got) != 0 {
			t.Errorf("word Split(%q) = %v, want empty", in, got)
		}
	}
}

func TestSplit_CharWindows(t *testing.T) {
	got := Split("abcdefghij", charParams(4, 1))
	want := []string{"abcd", "defg", "ghij"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplit_CharLastWindowShorter(t *testing.T) {
	got := Split("abcdefgh", charParams(5, 0))
	if len(got) != 2 || got[0] != "abcde" || got[1] != "fgh" {
		t.Fatalf("unexpected windows: %v", got)
	}
}

func TestSplit_CharIsRuneSafe(t *testing.T) {
	got := Split("€€€€€", charParams(2, 0))
	want := []string{"€€", "€€", "€"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplit_WordWindows(t *testing.T) {
	got := Split("one two\nthree  four five six", wordParams(3, 1))
	want := []string{"one two three", "three four five", "five six"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplit_OverlapNotLessThanSizeTerminates(t *testing.T) {
	tests := []struct {
		name    string
		overlap int
	}{
		{"equal", 3},
		{"greater", 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Split("a b c d e f g", wordParams(3, tc.overlap))
			want := []string{"a b c", "d e f", "g"}
			if strings.Join(got, "|") != strings.Join(want, "|") {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestSplit_DropsWhitespaceOnlyWindows(t *testing.T) {
	got := Split("abc     def", charParams(3, 0))
	for _, c := range got {
		if strings.TrimSpace(c) == "" {
			t.Fatalf("whitespace-only chunk in %q", got)
		}
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %v", got)
	}
}

func TestSplit_NormalizesLineEndings(t *testing.T) {
	got := Split("ab\r\ncd\ref", charParams(100, 0))
	if len(got) != 1 || got[0] != "ab\ncd\nef" {
		t.Fatalf("got %q", got)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("Revenue grew due to cloud subscriptions. ", 50)
	a := Split(text, charParams(120, 30))
	b := Split(text, charParams(120, 30))
	if strings.Join(a, "\x00") != strings.Join(b, "\x00") {
		t.Fatal("same input produced different chunks")
	}
}

func TestSplit_WindowStartsIncrease(t *testing.T) {
	words := make([]string, 97)
	for i := range words {
		words[i] = "w" + strings.Repeat("x", i%5)
	}
	text := strings.Join(words, " ")

	chunks := Split(text, wordParams(10, 4))
	covered := 0
	for i, c := range chunks {
		n := len(strings.Fields(c))
		if n > 10 {
			t.Fatalf("chunk %d has %d words", i, n)
		}
		covered = i*6 + n
	}
	if covered != len(words) {
		t.Fatalf("chunks cover %d words, want %d", covered, len(words))
	}
}

func TestChunker_Chunk(t *testing.T) {
	c, err := New(charParams(5, 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	chunks := c.Chunk(domain.Document{DocID: "aapl", Text: "abcdefghij", Source: "data/aapl.txt"})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.DocID != "aapl" || ch.ChunkID != i || ch.Source != "data/aapl.txt" {
			t.Errorf("chunk %d: unexpected identity %+v", i, ch)
		}
	}
}

func TestNew_InvalidParams(t *testing.T) {
	tests := []domain.ChunkingParams{
		{Mode: "sentence", Size: 10},
		{Mode: domain.ChunkModeChar, Size: 0},
		{Mode: domain.ChunkModeWord, Size: 10, Overlap: -1},
	}
	for _, p := range tests {
		if _, err := New(p); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("New(%v): expected ErrInvalidRequest, got %v", p, err)
		}
	}
}
