// Package searcher answers ranked and boolean queries against the indexer
// engine. Ranked results go through the query cache; boolean results never
// do.
package searcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

// Viewer is the read side of *indexer.Engine.
type Viewer interface {
	View(ctx context.Context, fn func(docs map[int]string, ix *index.Index) error) error
}

type Result struct {
	Query     string
	Mode      string
	Matches   []executor.Match
	TotalHits int
	Cached    bool
	Took      time.Duration
	// Terms are the query terms used for scoring; Excluded only applies to
	// boolean queries.
	Terms    []string
	Excluded []string
}

type Service struct {
	engine    Viewer
	cache     *cache.QueryCache
	exec      *executor.Executor
	cfg       config.SearchConfig
	metrics   *metrics.Metrics
	collector *analytics.Collector
	logger    *slog.Logger
}

// New wires a Service. qc, m and collector may be nil.
func New(engine Viewer, qc *cache.QueryCache, cfg config.SearchConfig, m *metrics.Metrics, collector *analytics.Collector) *Service {
	if qc == nil {
		qc = cache.New(nil)
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 5
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	return &Service{
		engine:    engine,
		cache:     qc,
		exec:      executor.New(cfg.SnippetLength),
		cfg:       cfg,
		metrics:   m,
		collector: collector,
		logger:    slog.Default().With("component", "searcher"),
	}
}

// Limit resolves a requested result count: <= 0 means the default and
// anything above the maximum is capped.
func (s *Service) Limit(limit int) int {
	switch {
	case limit <= 0:
		return s.cfg.DefaultLimit
	case limit > s.cfg.MaxLimit:
		return s.cfg.MaxLimit
	}
	return limit
}

// SearchRanked returns the best matches for free text. The full ranked list
// is cached and limit is applied afterwards, so every limit shares an entry.
func (s *Service) SearchRanked(ctx context.Context, query string, limit int) (*Result, error) {
	start := time.Now()
	limit = s.Limit(limit)
	ctx, span := tracing.Start(ctx, "search.ranked", logger.RequestID(ctx))
	defer span.Log(ctx)

	candidates := -1
	matches, hit, err := s.cache.GetOrCompute(ctx, query, func() ([]executor.Match, error) {
		_, rankSpan := tracing.Child(ctx, "rank")
		defer rankSpan.End()
		var out []executor.Match
		err := s.engine.View(ctx, func(docs map[int]string, ix *index.Index) error {
			var st executor.Stats
			out, st = s.exec.Ranked(query, docs, ix)
			candidates = st.Candidates
			rankSpan.SetAttr("candidates", st.Candidates)
			return nil
		})
		return out, err
	})
	span.SetAttr("cache_hit", hit)
	span.End()

	res := &Result{
		Query:  query,
		Mode:   analytics.ModeRanked,
		Cached: hit,
		Took:   time.Since(start),
		Terms:  tokenizer.Unique(query),
	}
	if err == nil {
		res.TotalHits = len(matches)
		res.Matches = truncate(matches, limit)
	}
	status := "miss"
	if hit {
		status = "hit"
	}
	s.observe(ctx, res, status, candidates, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SearchBoolean parses and evaluates an AND/OR/NOT query. Parse failures are
// returned as *parser.ParseError.
func (s *Service) SearchBoolean(ctx context.Context, query string, limit int) (*Result, error) {
	start := time.Now()
	limit = s.Limit(limit)
	ctx, span := tracing.Start(ctx, "search.boolean", logger.RequestID(ctx))
	defer span.Log(ctx)

	res := &Result{Query: query, Mode: analytics.ModeBoolean}
	_, parseSpan := tracing.Child(ctx, "parse")
	q, err := parser.Parse(query)
	parseSpan.End()
	if err != nil {
		span.End()
		res.Took = time.Since(start)
		s.observe(ctx, res, "none", 0, err)
		return nil, err
	}
	parseSpan.SetAttr("postfix", q.String())
	res.Terms = q.Terms
	res.Excluded = q.Excluded

	candidates := 0
	_, evalSpan := tracing.Child(ctx, "evaluate")
	var matches []executor.Match
	err = s.engine.View(ctx, func(docs map[int]string, ix *index.Index) error {
		var st executor.Stats
		var err error
		matches, st, err = s.exec.Boolean(q, docs, ix)
		candidates = st.Candidates
		evalSpan.SetAttr("candidates", st.Candidates)
		evalSpan.SetAttr("excluded", st.Excluded)
		return err
	})
	evalSpan.End()
	span.End()

	res.Took = time.Since(start)
	if err == nil {
		res.TotalHits = len(matches)
		res.Matches = truncate(matches, limit)
	}
	s.observe(ctx, res, "none", candidates, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) observe(ctx context.Context, res *Result, cacheStatus string, candidates int, err error) {
	s.metrics.ObserveSearch(res.Mode, cacheStatus, res.TotalHits, candidates, res.Took, err)
	s.collector.Track(analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Query:     res.Query,
		Mode:      res.Mode,
		TotalHits: res.TotalHits,
		Returned:  len(res.Matches),
		LatencyMs: res.Took.Milliseconds(),
		CacheHit:  res.Cached,
		Failed:    err != nil,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	})

	log := logger.FromContext(ctx)
	if err != nil {
		log.Info("search failed", "mode", res.Mode, "query", res.Query, "error", err)
		return
	}
	log.Info("search completed",
		"mode", res.Mode,
		"query", res.Query,
		"total_hits", res.TotalHits,
		"returned", len(res.Matches),
		"cache_hit", res.Cached,
		"latency_ms", res.Took.Milliseconds(),
	)
}

func truncate(matches []executor.Match, limit int) []executor.Match {
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]executor.Match, len(matches))
	copy(out, matches)
	return out
}

// ClearCache drops every cached ranked result.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

func (s *Service) CacheStats(ctx context.Context) cache.Stats {
	return s.cache.Stats(ctx)
}
