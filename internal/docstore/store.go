// Package docstore persists the document collection: a mapping from integer
// id to text.
//
// Ids are assigned as max(high-water mark, largest existing id + 1), starting
// at 0. The high-water mark survives deletes, so an id is never handed out
// twice, and persistent backends keep it across restarts.
package docstore

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Store is the document collection consumed by the indexer engine.
type Store interface {
	// All returns a snapshot of every document. The map is owned by the caller.
	All(ctx context.Context) (map[int]string, error)
	Get(ctx context.Context, id int) (string, error)
	Insert(ctx context.Context, text string) (int, error)
	InsertBatch(ctx context.Context, texts []string) ([]int, error)
	// Delete reports whether id existed.
	Delete(ctx context.Context, id int) (bool, error)
	// DeleteBatch removes every id that exists and returns those that did not.
	DeleteBatch(ctx context.Context, ids []int) ([]int, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// Reloader is implemented by stores whose backing data can change outside
// the process. Reload reports whether the contents changed.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
}

// docSet is the in-memory state shared by the memory and file backends.
type docSet struct {
	docs   map[int]string
	nextID int
}

func newDocSet() docSet {
	return docSet{docs: make(map[int]string)}
}

// fixNextID raises nextID above every existing id.
func (s *docSet) fixNextID() {
	for id := range s.docs {
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
}

func (s *docSet) insert(text string) int {
	id := s.nextID
	s.docs[id] = text
	s.nextID++
	return id
}

func (s *docSet) snapshot() map[int]string {
	out := make(map[int]string, len(s.docs))
	for id, text := range s.docs {
		out[id] = text
	}
	return out
}

// deleteBatch removes ids and returns the removed entries and the misses.
func (s *docSet) deleteBatch(ids []int) (removed map[int]string, notFound []int) {
	removed = make(map[int]string)
	notFound = []int{}
	for _, id := range ids {
		text, ok := s.docs[id]
		if !ok {
			if _, dup := removed[id]; !dup {
				notFound = append(notFound, id)
			}
			continue
		}
		removed[id] = text
		delete(s.docs, id)
	}
	return removed, notFound
}

// Memory is a volatile Store.
type Memory struct {
	mu  sync.RWMutex
	set docSet
}

func NewMemory() *Memory {
	return &Memory{set: newDocSet()}
}

// NewMemoryFrom seeds a Memory store. nextID starts above the largest seed id.
func NewMemoryFrom(docs map[int]string) *Memory {
	m := NewMemory()
	for id, text := range docs {
		m.set.docs[id] = text
	}
	m.set.fixNextID()
	return m
}

func (m *Memory) All(_ context.Context) (map[int]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.snapshot(), nil
}

func (m *Memory) Get(_ context.Context, id int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.set.docs[id]
	if !ok {
		return "", apperrors.NotFound(id)
	}
	return text, nil
}

func (m *Memory) Insert(_ context.Context, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set.insert(text), nil
}

func (m *Memory) InsertBatch(_ context.Context, texts []string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, len(texts))
	for i, text := range texts {
		ids[i] = m.set.insert(text)
	}
	return ids, nil
}

func (m *Memory) Delete(_ context.Context, id int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.set.docs[id]; !ok {
		return false, nil
	}
	delete(m.set.docs, id)
	return true, nil
}

func (m *Memory) DeleteBatch(_ context.Context, ids []int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, notFound := m.set.deleteBatch(ids)
	return notFound, nil
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.set.docs), nil
}

func (m *Memory) Close() error { return nil }

// SortedIDs returns the keys of docs in ascending order.
func SortedIDs(docs map[int]string) []int {
	ids := make([]int, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
