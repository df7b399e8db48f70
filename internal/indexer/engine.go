// Package indexer keeps the inverted index in step with the document store.
//
// Every query runs under the engine's read lock and every mutation (store
// write followed by index update) under its write lock, so a query never sees
// a store and an index from different moments.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// MaxContentBytes bounds a single document.
const MaxContentBytes = 1 << 20

const (
	OpInsert = "insert"
	OpDelete = "delete"
	OpReload = "reload"
)

// Mutation describes a committed change to the collection.
type Mutation struct {
	Op  string
	IDs []int
}

type Stats struct {
	Documents     int           `json:"documents"`
	Terms         int           `json:"terms"`
	Incremental   bool          `json:"incremental"`
	LastBuild     time.Time     `json:"last_build"`
	LastBuildTook time.Duration `json:"last_build_ns"`
}

type Engine struct {
	mu        sync.RWMutex
	store     docstore.Store
	ix        *index.Index
	cfg       config.IndexerConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
	lastBuild time.Time
	buildTook time.Duration

	hooksMu sync.RWMutex
	hooks   []func(context.Context, Mutation)
}

// New builds the initial index from store. m may be nil.
func New(ctx context.Context, store docstore.Store, cfg config.IndexerConfig, m *metrics.Metrics) (*Engine, error) {
	e := &Engine{
		store:   store,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
	if err := e.rebuildLocked(ctx); err != nil {
		return nil, fmt.Errorf("building initial index: %w", err)
	}
	e.logger.Info("index built",
		"documents", e.ix.DocCount(),
		"terms", e.ix.TermCount(),
		"incremental", cfg.Incremental,
	)
	return e, nil
}

// OnMutate registers fn to run after every committed mutation, outside the
// engine lock.
func (e *Engine) OnMutate(fn func(context.Context, Mutation)) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.hooks = append(e.hooks, fn)
}

func (e *Engine) notify(ctx context.Context, m Mutation) {
	e.hooksMu.RLock()
	hooks := make([]func(context.Context, Mutation), len(e.hooks))
	copy(hooks, e.hooks)
	e.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, m)
	}
}

// View runs fn against a consistent snapshot of documents and index. Neither
// may be retained or modified after fn returns.
func (e *Engine) View(ctx context.Context, fn func(docs map[int]string, ix *index.Index) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	docs, err := e.store.All(ctx)
	if err != nil {
		return fmt.Errorf("reading documents: %w", err)
	}
	return fn(docs, e.ix)
}

// ValidateContent rejects text that cannot be stored as a document.
func ValidateContent(text string) error {
	if reason := invalidContent(text); reason != "" {
		return apperrors.InvalidInput("%s", reason)
	}
	return nil
}

func invalidContent(text string) string {
	switch {
	case strings.TrimSpace(text) == "":
		return "content must be non-empty text"
	case !utf8.ValidString(text):
		return "content must be valid UTF-8"
	case len(text) > MaxContentBytes:
		return fmt.Sprintf("content exceeds %d bytes", MaxContentBytes)
	}
	return ""
}

func (e *Engine) Insert(ctx context.Context, text string) (int, error) {
	ids, err := e.InsertBatch(ctx, []string{text})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// InsertBatch validates every text before writing any of them.
func (e *Engine) InsertBatch(ctx context.Context, texts []string) ([]int, error) {
	if len(texts) == 0 {
		return nil, apperrors.InvalidInput("no documents given")
	}
	for i, text := range texts {
		if reason := invalidContent(text); reason != "" {
			if len(texts) == 1 {
				return nil, apperrors.InvalidInput("%s", reason)
			}
			return nil, apperrors.InvalidInput("document %d: %s", i, reason)
		}
	}

	e.mu.Lock()
	ids, err := e.store.InsertBatch(ctx, texts)
	if err != nil {
		e.mu.Unlock()
		e.metrics.ObserveMutation(OpInsert, len(texts), err)
		return nil, fmt.Errorf("storing documents: %w", err)
	}
	e.applyLocked(ctx, func(ix *index.Index) {
		for i, id := range ids {
			ix.Add(id, texts[i])
		}
	})
	e.mu.Unlock()

	e.metrics.ObserveMutation(OpInsert, len(ids), nil)
	e.logger.Debug("documents inserted", "ids", ids)
	e.notify(ctx, Mutation{Op: OpInsert, IDs: ids})
	return ids, nil
}

// Delete returns an ErrDocumentNotFound error when id does not exist.
func (e *Engine) Delete(ctx context.Context, id int) error {
	notFound, err := e.DeleteBatch(ctx, []int{id})
	if err != nil {
		return err
	}
	if len(notFound) > 0 {
		return apperrors.NotFound(id)
	}
	return nil
}

// DeleteBatch removes every existing id and reports the rest.
func (e *Engine) DeleteBatch(ctx context.Context, ids []int) ([]int, error) {
	e.mu.Lock()
	notFound, err := e.store.DeleteBatch(ctx, ids)
	if err != nil {
		e.mu.Unlock()
		e.metrics.ObserveMutation(OpDelete, len(ids), err)
		return nil, fmt.Errorf("deleting documents: %w", err)
	}
	deleted := removedIDs(ids, notFound)
	if len(deleted) > 0 {
		e.applyLocked(ctx, func(ix *index.Index) {
			for _, id := range deleted {
				ix.Remove(id)
			}
		})
	}
	e.mu.Unlock()

	if len(deleted) > 0 {
		e.metrics.ObserveMutation(OpDelete, len(deleted), nil)
		e.notify(ctx, Mutation{Op: OpDelete, IDs: deleted})
	}
	if len(notFound) > 0 {
		e.metrics.ObserveMutation(OpDelete, len(notFound), apperrors.ErrDocumentNotFound)
	}
	return notFound, nil
}

func removedIDs(ids, notFound []int) []int {
	missing := make(map[int]bool, len(notFound))
	for _, id := range notFound {
		missing[id] = true
	}
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if missing[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (e *Engine) Get(ctx context.Context, id int) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Get(ctx, id)
}

// Reload picks up external changes for stores that support it and rebuilds
// the index when something changed.
func (e *Engine) Reload(ctx context.Context) (bool, error) {
	r, ok := e.store.(docstore.Reloader)
	if !ok {
		return false, nil
	}
	e.mu.Lock()
	changed, err := r.Reload(ctx)
	if err == nil && changed {
		err = e.rebuildLocked(ctx)
	}
	e.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("reloading documents: %w", err)
	}
	if changed {
		e.logger.Info("documents reloaded from store", "documents", e.Stats().Documents)
		e.notify(ctx, Mutation{Op: OpReload})
	}
	return changed, nil
}

// Rebuild discards the index and builds it again from the store.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.mu.Lock()
	err := e.rebuildLocked(ctx)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}
	st := e.Stats()
	e.logger.Info("index rebuilt", "documents", st.Documents, "terms", st.Terms, "took", st.LastBuildTook)
	return nil
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Documents:     e.ix.DocCount(),
		Terms:         e.ix.TermCount(),
		Incremental:   e.cfg.Incremental,
		LastBuild:     e.lastBuild,
		LastBuildTook: e.buildTook,
	}
}

func (e *Engine) Close() error {
	return e.store.Close()
}

// applyLocked brings the index up to date after a store write. A failed full
// rebuild falls back to the incremental update so the index never lags the
// store.
func (e *Engine) applyLocked(ctx context.Context, incremental func(*index.Index)) {
	if !e.cfg.Incremental {
		err := e.rebuildLocked(ctx)
		if err == nil {
			return
		}
		e.logger.Warn("full rebuild failed, applying change incrementally", "error", err)
	}
	start := time.Now()
	incremental(e.ix)
	e.observeBuild("incremental", time.Since(start))
}

func (e *Engine) rebuildLocked(ctx context.Context) error {
	start := time.Now()
	docs, err := e.store.All(ctx)
	if err != nil {
		return err
	}
	e.ix = index.Build(docs)
	e.observeBuild("full", time.Since(start))
	return nil
}

func (e *Engine) observeBuild(mode string, took time.Duration) {
	e.lastBuild = time.Now()
	e.buildTook = took
	e.metrics.ObserveIndex(mode, e.ix.DocCount(), e.ix.TermCount(), took)
}
