// Package ingest loads the plain-text corpus and watches it for changes.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// Ext is the corpus file extension.
const Ext = ".txt"

// LoadDir reads every *.txt file directly under dir, sorted by name. The doc id
// is the file stem and the source is the file path. Invalid UTF-8 is dropped.
func LoadDir(dir string) ([]domain.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isCorpusFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	docs := make([]domain.Document, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		docs = append(docs, domain.Document{
			DocID:  strings.TrimSuffix(name, filepath.Ext(name)),
			Text:   strings.ToValidUTF8(string(data), ""),
			Source: path,
		})
	}
	return docs, nil
}

func isCorpusFile(name string) bool {
	return !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), Ext)
}
