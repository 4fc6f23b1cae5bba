package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hamed0406/uptimeworker/internal/repo"
)

// Store keeps records in process memory. Documents are copied on the way in
// and out so callers cannot mutate stored state.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func New() *Store {
	return &Store{data: make(map[string]map[string][]byte)}
}

func (m *Store) List(ctx context.Context, collection string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data[collection]))
	for id := range m.data[collection] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Store) Read(ctx context.Context, collection, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.data[collection][id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return clone(doc), nil
}

func (m *Store) Create(ctx context.Context, collection, id string, doc []byte) error {
	if err := repo.ValidKey(collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.data[collection]
	if c == nil {
		c = make(map[string][]byte)
		m.data[collection] = c
	}
	if _, ok := c[id]; ok {
		return repo.ErrExists
	}
	c[id] = clone(doc)
	return nil
}

func (m *Store) Update(ctx context.Context, collection, id string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[collection][id]; !ok {
		return repo.ErrNotFound
	}
	m.data[collection][id] = clone(doc)
	return nil
}

func (m *Store) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[collection][id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.data[collection], id)
	return nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

var _ repo.RecordStore = (*Store)(nil)
