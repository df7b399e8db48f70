package docstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// File keeps the collection in memory and rewrites a JSON file after every
// mutation:
//
//	{"next_id": 3, "documents": {"0": "apple banana", "2": "grape"}}
//
// A plain {"0": "text"} object is also accepted on load; it is upgraded on the
// next write. Writes go to a temporary file that is renamed over the target.
type File struct {
	mu       sync.RWMutex
	path     string
	set      docSet
	lastHash [sha256.Size]byte
	logger   *slog.Logger
}

type fileFormat struct {
	NextID    int               `json:"next_id"`
	Documents map[string]string `json:"documents"`
}

// OpenFile loads path, creating an empty collection if it does not exist.
func OpenFile(path string) (*File, error) {
	f := &File{
		path:   filepath.Clean(path),
		set:    newDocSet(),
		logger: slog.Default().With("component", "docstore", "driver", "file"),
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f.logger.Info("document file not found, starting empty", "path", f.path)
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	set, err := decodeFile(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.path, err)
	}
	f.set = set
	f.lastHash = sha256.Sum256(data)
	f.logger.Info("documents loaded", "path", f.path, "count", len(set.docs), "next_id", set.nextID)
	return f, nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

func decodeFile(data []byte) (docSet, error) {
	set := newDocSet()
	if len(bytes.TrimSpace(data)) == 0 {
		return set, nil
	}

	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return set, err
	}

	raw := map[string]string{}
	_, hasDocs := shape["documents"]
	_, hasNext := shape["next_id"]
	if hasDocs || hasNext {
		var ff fileFormat
		if err := json.Unmarshal(data, &ff); err != nil {
			return set, err
		}
		raw = ff.Documents
		set.nextID = ff.NextID
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return set, fmt.Errorf("legacy format: %w", err)
	}

	for key, text := range raw {
		id, err := strconv.Atoi(key)
		if err != nil || id < 0 {
			return set, fmt.Errorf("invalid document id %q", key)
		}
		set.docs[id] = text
	}
	set.fixNextID()
	return set, nil
}

func encodeFile(set docSet) ([]byte, error) {
	ff := fileFormat{
		NextID:    set.nextID,
		Documents: make(map[string]string, len(set.docs)),
	}
	for id, text := range set.docs {
		ff.Documents[strconv.Itoa(id)] = text
	}
	return json.MarshalIndent(ff, "", "  ")
}

// persist must be called with f.mu held for writing.
func (f *File) persist() error {
	data, err := encodeFile(f.set)
	if err != nil {
		return fmt.Errorf("encoding documents: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("renaming into place: %w", err)
	}
	f.lastHash = sha256.Sum256(data)
	return nil
}

func (f *File) All(_ context.Context) (map[int]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.set.snapshot(), nil
}

func (f *File) Get(_ context.Context, id int) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	text, ok := f.set.docs[id]
	if !ok {
		return "", apperrors.NotFound(id)
	}
	return text, nil
}

func (f *File) Insert(ctx context.Context, text string) (int, error) {
	ids, err := f.InsertBatch(ctx, []string{text})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// InsertBatch writes all texts or none of them.
func (f *File) InsertBatch(_ context.Context, texts []string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prevNext := f.set.nextID
	ids := make([]int, len(texts))
	for i, text := range texts {
		ids[i] = f.set.insert(text)
	}
	if err := f.persist(); err != nil {
		for _, id := range ids {
			delete(f.set.docs, id)
		}
		f.set.nextID = prevNext
		return nil, err
	}
	return ids, nil
}

func (f *File) Delete(ctx context.Context, id int) (bool, error) {
	notFound, err := f.DeleteBatch(ctx, []int{id})
	if err != nil {
		return false, err
	}
	return len(notFound) == 0, nil
}

func (f *File) DeleteBatch(_ context.Context, ids []int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed, notFound := f.set.deleteBatch(ids)
	if len(removed) == 0 {
		return notFound, nil
	}
	if err := f.persist(); err != nil {
		for id, text := range removed {
			f.set.docs[id] = text
		}
		return nil, err
	}
	return notFound, nil
}

func (f *File) Len(_ context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.set.docs), nil
}

// Reload re-reads the file if its content differs from the last write.
func (f *File) Reload(_ context.Context) (bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", f.path, err)
	}
	hash := sha256.Sum256(data)

	f.mu.Lock()
	defer f.mu.Unlock()
	if hash == f.lastHash {
		return false, nil
	}
	set, err := decodeFile(data)
	if err != nil {
		return false, fmt.Errorf("decoding %s: %w", f.path, err)
	}
	if set.nextID < f.set.nextID {
		set.nextID = f.set.nextID
	}
	f.set = set
	f.lastHash = hash
	f.logger.Info("documents reloaded", "path", f.path, "count", len(set.docs))
	return true, nil
}

func (f *File) Close() error { return nil }
