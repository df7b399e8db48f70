// Package handler exposes the search service over JSON HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

const (
	highlightPre  = "<em>"
	highlightPost = "</em>"
)

// Searcher is the part of *searcher.Service the handler needs.
type Searcher interface {
	SearchRanked(ctx context.Context, query string, limit int) (*searcher.Result, error)
	SearchBoolean(ctx context.Context, query string, limit int) (*searcher.Result, error)
	ClearCache(ctx context.Context) error
	CacheStats(ctx context.Context) cache.Stats
}

// IndexAdmin reports index statistics and rebuilds the index on demand,
// normally *indexer.Engine.
type IndexAdmin interface {
	Stats() indexer.Stats
	Rebuild(ctx context.Context) error
}

type Handler struct {
	search Searcher
	index  IndexAdmin
	logger *slog.Logger
}

func New(search Searcher, index IndexAdmin) *Handler {
	return &Handler{
		search: search,
		index:  index,
		logger: slog.Default().With("component", "search-handler"),
	}
}

type searchResponse struct {
	Query     string           `json:"query"`
	Mode      string           `json:"mode"`
	TotalHits int              `json:"total_hits"`
	Results   []executor.Match `json:"results"`
	TookMs    float64          `json:"took_ms"`
	Cached    bool             `json:"cached"`
	Excluded  []string         `json:"excluded,omitempty"`
}

type parseErrorResponse struct {
	Error    string `json:"error"`
	Detail   string `json:"detail"`
	Position int    `json:"position"`
}

// Search serves GET /api/v1/search?q=&limit=&highlight=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	h.serveSearch(w, r, h.search.SearchRanked, true)
}

// Boolean serves GET /api/v1/search/boolean?q=&limit=&highlight=.
func (h *Handler) Boolean(w http.ResponseWriter, r *http.Request) {
	// An empty q goes to the parser so the client gets a positioned error.
	h.serveSearch(w, r, h.search.SearchBoolean, false)
}

func (h *Handler) serveSearch(w http.ResponseWriter, r *http.Request, run func(context.Context, string, int) (*searcher.Result, error), requireQuery bool) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" && requireQuery {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	highlight, _ := strconv.ParseBool(q.Get("highlight"))

	res, err := run(r.Context(), query, limit)
	if err != nil {
		var pe *parser.ParseError
		if errors.As(err, &pe) {
			h.writeJSON(w, http.StatusBadRequest, parseErrorResponse{
				Error:    "invalid query",
				Detail:   pe.Msg,
				Position: pe.Pos,
			})
			return
		}
		logger.FromContext(r.Context()).Error("search failed", "query", query, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}

	results := res.Matches
	if results == nil {
		results = []executor.Match{}
	}
	if highlight {
		for i := range results {
			results[i].Snippet = executor.Highlight(results[i].Snippet, res.Terms, highlightPre, highlightPost)
		}
	}
	h.writeJSON(w, http.StatusOK, searchResponse{
		Query:     res.Query,
		Mode:      res.Mode,
		TotalHits: res.TotalHits,
		Results:   results,
		TookMs:    float64(res.Took.Microseconds()) / 1000,
		Cached:    res.Cached,
		Excluded:  res.Excluded,
	})
}

// ClearCache serves DELETE /api/v1/cache.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.search.ClearCache(r.Context()); err != nil {
		h.logger.Error("cache clear failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "cache clear failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// CacheStats serves GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	st := h.search.CacheStats(r.Context())
	var hitRate float64
	if total := st.Hits + st.Misses; total > 0 {
		hitRate = float64(st.Hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, struct {
		cache.Stats
		HitRate float64 `json:"hit_rate"`
	}{st, hitRate})
}

// IndexStats serves GET /api/v1/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.index.Stats())
}

// RebuildIndex serves POST /api/v1/index/rebuild. The index is rebuilt from
// the document store and the result cache is cleared afterwards.
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.index.Rebuild(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("index rebuild failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "index rebuild failed")
		return
	}
	if err := h.search.ClearCache(r.Context()); err != nil {
		h.logger.Warn("cache clear after rebuild failed", "error", err)
	}
	h.writeJSON(w, http.StatusOK, h.index.Stats())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
