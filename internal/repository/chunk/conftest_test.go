package chunk

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/db"
)

// memStore is an in-memory implementation of the consumer interface.
// KNN results are served by the searchFn hook since FT.SEARCH is not emulated.
type memStore struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	indexes map[string]*db.IndexDefinition
	dropped []string

	pingErr       error
	hsetMultiErr  error
	createIndexFn func(def *db.IndexDefinition) error
	searchFn      func(q *db.KNNQuery) (*db.SearchResult, error)
	listFn        func(index, query string, offset, limit int) (*db.SearchResult, error)
}

func newMemStore() *memStore {
	return &memStore{
		hashes:  map[string]map[string]string{},
		indexes: map[string]*db.IndexDefinition{},
	}
}

func (m *memStore) Ping(_ context.Context) error { return m.pingErr }

func (m *memStore) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *memStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiErr != nil {
		return m.hsetMultiErr
	}
	for _, it := range items {
		if err := m.HSet(ctx, it.Key, it.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) ExistsMulti(_ context.Context, keys []string) ([]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bool, len(keys))
	for i, k := range keys {
		_, out[i] = m.hashes[k]
	}
	return out, nil
}

func (m *memStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		if err := m.createIndexFn(def); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	m.indexes[def.Name] = def
	return nil
}

func (m *memStore) DropIndex(_ context.Context, name string, deleteDocs bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.indexes[name]
	if !ok {
		return db.ErrIndexNotFound
	}
	delete(m.indexes, name)
	m.dropped = append(m.dropped, name)
	if deleteDocs {
		for key := range m.hashes {
			for _, p := range def.Prefixes {
				if strings.HasPrefix(key, p) {
					delete(m.hashes, key)
				}
			}
		}
	}
	return nil
}

func (m *memStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.mu.Lock()
	_, ok := m.indexes[q.IndexName]
	m.mu.Unlock()
	if !ok {
		return nil, db.ErrIndexNotFound
	}
	if m.searchFn != nil {
		return m.searchFn(q)
	}
	return &db.SearchResult{}, nil
}

func (m *memStore) SearchList(
	_ context.Context, index, query string, offset, limit int, _ []string,
) (*db.SearchResult, error) {
	if m.listFn != nil {
		return m.listFn(index, query, offset, limit)
	}
	return &db.SearchResult{}, nil
}

// keysWithPrefix returns the number of hashes under prefix.
func (m *memStore) keysWithPrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.hashes {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

func newTestRepo() (*Repo, *memStore) {
	s := newMemStore()
	return New(s, zap.NewNop()), s
}
