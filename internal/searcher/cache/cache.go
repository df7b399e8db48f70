// Package cache memoizes ranked search results keyed by the lower-cased query
// string. Keys are compared exactly after case folding: no trimming and no
// token normalisation.
//
// Entries never expire on their own and are not invalidated by document
// mutations. Callers that need fresh results after a mutation must call Clear.
// Backend failures are logged and treated as misses.
package cache

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Backend stores result lists under already-normalised keys.
type Backend interface {
	Name() string
	Load(ctx context.Context, key string) ([]executor.Match, bool, error)
	Store(ctx context.Context, key string, matches []executor.Match) error
	Clear(ctx context.Context) (int64, error)
}

// Sizer is implemented by backends that can report their entry count.
type Sizer interface {
	Len(ctx context.Context) (int64, error)
}

type Stats struct {
	Backend string `json:"backend"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Errors  int64  `json:"errors"`
	Entries int64  `json:"entries"`
}

type QueryCache struct {
	backend    Backend
	group      singleflight.Group
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
	errors     atomic.Int64
	generation atomic.Uint64
}

func New(backend Backend) *QueryCache {
	if backend == nil {
		backend = Nop{}
	}
	return &QueryCache{
		backend: backend,
		logger:  slog.Default().With("component", "query-cache", "backend", backend.Name()),
	}
}

// Key is the cache key for query.
func Key(query string) string {
	return strings.ToLower(query)
}

func (c *QueryCache) Get(ctx context.Context, query string) ([]executor.Match, bool) {
	key := Key(query)
	matches, ok, err := c.backend.Load(ctx, key)
	if err != nil {
		c.errors.Add(1)
		c.misses.Add(1)
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", key)
	return matches, true
}

func (c *QueryCache) Put(ctx context.Context, query string, matches []executor.Match) {
	key := Key(query)
	if err := c.backend.Store(ctx, key, matches); err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached results for query, or runs compute once
// per key across concurrent callers and caches its result. The bool reports
// a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	compute func() ([]executor.Match, error),
) ([]executor.Match, bool, error) {
	if matches, ok := c.Get(ctx, query); ok {
		return matches, true, nil
	}
	key := Key(query)
	gen := c.generation.Load()
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		matches, err := compute()
		if err != nil {
			return nil, err
		}
		// A Clear that ran during compute must not be undone.
		if c.generation.Load() == gen {
			c.Put(ctx, query, matches)
		}
		return matches, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]executor.Match), false, nil
}

// Clear removes every entry.
func (c *QueryCache) Clear(ctx context.Context) error {
	c.generation.Add(1)
	deleted, err := c.backend.Clear(ctx)
	if err != nil {
		c.errors.Add(1)
		c.logger.Error("cache clear failed", "error", err)
		return apperrors.Newf(apperrors.ErrCacheUnavailable, http.StatusServiceUnavailable, "clearing %s cache: %v", c.backend.Name(), err)
	}
	c.logger.Info("cache cleared", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats(ctx context.Context) Stats {
	s := Stats{
		Backend: c.backend.Name(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errors.Load(),
		Entries: -1,
	}
	if sizer, ok := c.backend.(Sizer); ok {
		if n, err := sizer.Len(ctx); err == nil {
			s.Entries = n
		}
	}
	return s
}

func copyMatches(matches []executor.Match) []executor.Match {
	out := make([]executor.Match, len(matches))
	copy(out, matches)
	return out
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Name() string { return "none" }

func (Nop) Load(context.Context, string) ([]executor.Match, bool, error) { return nil, false, nil }

func (Nop) Store(context.Context, string, []executor.Match) error { return nil }

func (Nop) Clear(context.Context) (int64, error) { return 0, nil }
