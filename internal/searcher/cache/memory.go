package cache

import (
	"context"
	"sync"

	farmhash "github.com/leemcloughlin/gofarmhash"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
)

// Memory is an in-process backend split into independently locked segments
// chosen by farmhash of the key.
type Memory struct {
	segments []memorySegment
}

type memorySegment struct {
	mu      sync.RWMutex
	entries map[string][]executor.Match
}

func NewMemory(segments int) *Memory {
	if segments <= 0 {
		segments = 16
	}
	m := &Memory{segments: make([]memorySegment, segments)}
	for i := range m.segments {
		m.segments[i].entries = make(map[string][]executor.Match)
	}
	return m
}

func (m *Memory) segment(key string) *memorySegment {
	idx := farmhash.Hash32WithSeed([]byte(key), 0) % uint32(len(m.segments))
	return &m.segments[idx]
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Load(_ context.Context, key string) ([]executor.Match, bool, error) {
	seg := m.segment(key)
	seg.mu.RLock()
	matches, ok := seg.entries[key]
	seg.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return copyMatches(matches), true, nil
}

func (m *Memory) Store(_ context.Context, key string, matches []executor.Match) error {
	stored := copyMatches(matches)
	seg := m.segment(key)
	seg.mu.Lock()
	seg.entries[key] = stored
	seg.mu.Unlock()
	return nil
}

// Clear locks every segment before emptying any, so no reader sees a
// partially cleared cache.
func (m *Memory) Clear(_ context.Context) (int64, error) {
	for i := range m.segments {
		m.segments[i].mu.Lock()
	}
	var n int64
	for i := range m.segments {
		n += int64(len(m.segments[i].entries))
		m.segments[i].entries = make(map[string][]executor.Match)
	}
	for i := range m.segments {
		m.segments[i].mu.Unlock()
	}
	return n, nil
}

func (m *Memory) Len(_ context.Context) (int64, error) {
	var n int64
	for i := range m.segments {
		m.segments[i].mu.RLock()
		n += int64(len(m.segments[i].entries))
		m.segments[i].mu.RUnlock()
	}
	return n, nil
}
