// Package router wires every API route of the search server and applies the
// middleware chain (RequestID → CORS → Metrics → RateLimit → Timeout).
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/metadata"
	searchhandler "github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

// Handlers groups the route handlers. Metadata and MetricsHandler may be
// nil, which leaves their routes unregistered.
type Handlers struct {
	Search         *searchhandler.Handler
	Documents      *ingesthandler.Handler
	Analytics      *analytics.Handler
	Metadata       *metadata.Handler
	Health         *health.Checker
	MetricsHandler http.Handler
}

type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Limiter nil disables rate limiting.
	Limiter *middleware.IPLimiter
	Metrics *metrics.Metrics
}

// New builds the full HTTP handler.
//
// Route table:
//
//	GET    /api/v1/search                   → ranked search (cached)
//	GET    /api/v1/search/boolean           → boolean search
//	DELETE /api/v1/cache                    → clear the result cache
//	GET    /api/v1/cache/stats              → cache counters
//	GET    /api/v1/stats                    → index statistics
//	POST   /api/v1/index/rebuild            → rebuild the index from the store
//	POST   /api/v1/documents                → insert one document
//	POST   /api/v1/documents/batch          → insert many documents
//	POST   /api/v1/documents/batch/delete   → delete many documents
//	POST   /api/v1/documents/grab           → ingest a web page
//	GET    /api/v1/documents/{id}           → fetch a document
//	DELETE /api/v1/documents/{id}           → delete a document
//	GET    /api/v1/analytics                → aggregated search analytics
//	*      /api/v1/metadata/...             → metadata side-store
//	GET    /health/live, /health/ready      → liveness and readiness
//	GET    /metrics                         → prometheus
func New(h Handlers, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", h.Health.LiveHandler())
	mux.HandleFunc("GET /health/ready", h.Health.ReadyHandler())
	if h.MetricsHandler != nil {
		mux.Handle("GET /metrics", h.MetricsHandler)
	}

	// Search API
	mux.HandleFunc("GET /api/v1/search", h.Search.Search)
	mux.HandleFunc("GET /api/v1/search/boolean", h.Search.Boolean)
	mux.HandleFunc("DELETE /api/v1/cache", h.Search.ClearCache)
	mux.HandleFunc("GET /api/v1/cache/stats", h.Search.CacheStats)
	mux.HandleFunc("GET /api/v1/stats", h.Search.IndexStats)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Search.RebuildIndex)

	// Document API
	mux.HandleFunc("POST /api/v1/documents", h.Documents.Ingest)
	mux.HandleFunc("POST /api/v1/documents/batch", h.Documents.IngestBatch)
	mux.HandleFunc("POST /api/v1/documents/batch/delete", h.Documents.DeleteBatch)
	mux.HandleFunc("POST /api/v1/documents/grab", h.Documents.Grab)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Documents.Get)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Documents.Delete)

	mux.HandleFunc("GET /api/v1/analytics", h.Analytics.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Analytics.Snapshots)

	if h.Metadata != nil {
		mux.HandleFunc("POST /api/v1/metadata", h.Metadata.Add)
		mux.HandleFunc("GET /api/v1/metadata/search", h.Metadata.Search)
		mux.HandleFunc("GET /api/v1/metadata/search/advanced", h.Metadata.Advanced)
		mux.HandleFunc("GET /api/v1/metadata/{id}", h.Metadata.Get)
		mux.HandleFunc("DELETE /api/v1/metadata/{id}", h.Metadata.Delete)
	}

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.CORS(middleware.DefaultCORSConfig(opts.AllowedOrigins)),
		middleware.Metrics(opts.Metrics),
	}
	if opts.Limiter != nil {
		mws = append(mws, middleware.RateLimit(opts.Limiter, opts.Metrics.IncRateLimited))
	}
	mws = append(mws, middleware.Timeout(opts.RequestTimeout))
	return middleware.Chain(mux, mws...)
}
