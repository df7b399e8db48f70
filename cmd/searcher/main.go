// Command searcher starts the document search server: the document store,
// the in-memory index, ranked and boolean search, the document API and,
// when configured, the metadata side-store and Kafka analytics.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/grabber"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/metadata"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/router"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	searchhandler "github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"cache", cfg.Cache.Backend,
		"incremental", cfg.Indexer.Incremental,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	store, err := docstore.Open(cfg.Store)
	if err != nil {
		slog.Error("failed to open document store", "error", err)
		os.Exit(1)
	}
	engine, err := indexer.New(ctx, store, cfg.Indexer, m)
	if err != nil {
		slog.Error("failed to build index", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	st := engine.Stats()
	slog.Info("index built", "documents", st.Documents, "terms", st.Terms, "took", st.LastBuildTook)

	if cfg.Store.Watch && cfg.Store.Driver == docstore.DriverFile {
		watcher, err := docstore.NewWatcher(cfg.Store.Path, cfg.Store.WatchDebounce, func(ctx context.Context) {
			if _, err := engine.Reload(ctx); err != nil {
				slog.Error("reload after external change failed", "error", err)
			}
		})
		if err != nil {
			slog.Warn("document file watcher unavailable", "error", err)
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
			slog.Info("watching document file", "path", cfg.Store.Path)
		}
	}

	var redisCache *cache.Redis
	queryCache := cache.New(nil)
	switch cfg.Cache.Backend {
	case "memory":
		queryCache = cache.New(cache.NewMemory(cfg.Cache.Segments))
	case "redis":
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
			break
		}
		defer redisClient.Close()
		redisCache = cache.NewRedis(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.CacheTTL,
			func(name string, _, to resilience.State) {
				m.SetBreakerState(name, int(to))
			})
		queryCache = cache.New(redisCache)
	}
	slog.Info("search cache ready", "backend", queryCache.Stats(ctx).Backend)

	var publisher analytics.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		publisher = producer
		slog.Info("publishing analytics to kafka", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}
	aggregator := analytics.NewAggregator()
	collector := analytics.NewCollector(aggregator, publisher, analytics.CollectorConfig{
		BufferSize:    cfg.Kafka.BufferSize,
		FlushInterval: cfg.Kafka.FlushInterval,
		OnDrop:        m.IncAnalyticsDropped,
	})
	collector.Start(ctx)
	defer collector.Close()

	svc := searcher.New(engine, queryCache, cfg.Search, m, collector)

	engine.OnMutate(func(ctx context.Context, mut indexer.Mutation) {
		collector.Track(analytics.DocumentEvent{
			Type:      analytics.EventDocument,
			Action:    mut.Op,
			DocIDs:    mut.IDs,
			Timestamp: time.Now().UTC(),
		})
	})
	if cfg.Cache.ClearOnMutation {
		engine.OnMutate(func(ctx context.Context, _ indexer.Mutation) {
			if err := svc.ClearCache(ctx); err != nil {
				slog.Warn("cache clear after mutation failed", "error", err)
			}
		})
	}

	checker := health.NewChecker()
	checker.Register("document_store", health.Ping(func(ctx context.Context) error {
		return engine.View(ctx, func(map[int]string, *index.Index) error { return nil })
	}, health.StatusDown))
	if redisCache != nil {
		checker.Register("redis", redisCheck(redisCache))
	}

	handlers := router.Handlers{
		Search:    searchhandler.New(svc, engine),
		Documents: ingesthandler.New(engine, grabber.New(engine, cfg.Ingest)),
		Health:    checker,
	}

	var snapshots analytics.SnapshotLister
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		checker.Register("postgres", health.Ping(db.Ping, health.StatusDegraded))

		meta := metadata.NewStore(db)
		if err := meta.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare metadata schema", "error", err)
			os.Exit(1)
		}
		handlers.Metadata = metadata.NewHandler(meta)

		snaps := snapshot.NewStore(db)
		if err := snaps.EnsureSchema(ctx); err != nil {
			slog.Warn("analytics snapshots unavailable", "error", err)
		} else {
			snapshots = snaps
		}
		slog.Info("metadata store enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}
	handlers.Analytics = analytics.NewHandler(aggregator, snapshots)

	if m != nil {
		if cfg.Metrics.Port == 0 {
			handlers.MetricsHandler = metrics.Handler()
		} else {
			go func() {
				if err := metrics.ListenAndServe(ctx, cfg.Metrics.Port, metrics.Handler()); err != nil {
					slog.Error("metrics server stopped", "error", err)
				}
			}()
		}
	}

	var limiter *middleware.IPLimiter
	if cfg.Server.RateLimit.RPS > 0 {
		limiter = middleware.NewIPLimiter(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
		go limiter.RunCleanup(ctx)
	}

	server := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: router.New(handlers, router.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
			Limiter:        limiter,
			Metrics:        m,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

// redisCheck reports the shared cache as degraded while its circuit is not
// closed, and pings the server otherwise.
func redisCheck(rc *cache.Redis) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		if st := rc.BreakerState(); st != resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + st.String()}
		}
		return health.Ping(rc.Ping, health.StatusDegraded)(ctx)
	}
}
