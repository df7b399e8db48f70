package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	SearchesByMode    map[string]int64 `json:"searches_by_mode"`
	FailedSearches    int64            `json:"failed_searches"`
	DocsInserted      int64            `json:"docs_inserted"`
	DocsDeleted       int64            `json:"docs_deleted"`
	Reloads           int64            `json:"reloads"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds events into in-process counters.
type Aggregator struct {
	totalSearches atomic.Int64
	failed        atomic.Int64
	docsInserted  atomic.Int64
	docsDeleted   atomic.Int64
	reloads       atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	zeroResults   atomic.Int64

	mu                sync.RWMutex
	byMode            map[string]int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byMode:            make(map[string]int64),
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Record dispatches a SearchEvent or DocumentEvent. Other values are ignored.
func (a *Aggregator) Record(event any) {
	switch ev := event.(type) {
	case SearchEvent:
		a.recordSearchEvent(ev)
	case DocumentEvent:
		a.recordDocumentEvent(ev)
	}
}

// HandleEvent decodes events consumed from Kafka into agg.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		env, err := kafka.DecodeJSON[envelope](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch env.Type {
		case EventSearch:
			var ev SearchEvent
			if err := json.Unmarshal(value, &ev); err != nil {
				return fmt.Errorf("decoding search event: %w", err)
			}
			agg.recordSearchEvent(ev)
		case EventDocument:
			var ev DocumentEvent
			if err := json.Unmarshal(value, &ev); err != nil {
				return fmt.Errorf("decoding document event: %w", err)
			}
			agg.recordDocumentEvent(ev)
		default:
			agg.logger.Warn("unknown analytics event type", "type", env.Type)
		}
		return nil
	}
}

func (a *Aggregator) recordSearchEvent(event SearchEvent) {
	a.totalSearches.Add(1)
	if event.Failed {
		a.failed.Add(1)
	}
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else if event.Mode == ModeRanked {
		a.cacheMisses.Add(1)
	}
	zero := !event.Failed && event.TotalHits == 0
	if zero {
		a.zeroResults.Add(1)
	}

	a.mu.Lock()
	a.byMode[event.Mode]++
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.queryCounts[event.Query]++
	if zero {
		a.zeroResultQueries[event.Query]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) recordDocumentEvent(event DocumentEvent) {
	switch event.Action {
	case ActionInsert:
		a.docsInserted.Add(int64(len(event.DocIDs)))
	case ActionDelete:
		a.docsDeleted.Add(int64(len(event.DocIDs)))
	case ActionReload:
		a.reloads.Add(1)
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	stats := AggregatedStats{
		TotalSearches:   a.totalSearches.Load(),
		FailedSearches:  a.failed.Load(),
		DocsInserted:    a.docsInserted.Load(),
		DocsDeleted:     a.docsDeleted.Load(),
		Reloads:         a.reloads.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		ZeroResultCount: a.zeroResults.Load(),
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	stats.SearchesByMode = make(map[string]int64, len(a.byMode))
	for mode, n := range a.byMode {
		stats.SearchesByMode[mode] = n
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = Percentile(sorted, 50)
		stats.P95LatencyMs = Percentile(sorted, 95)
		stats.P99LatencyMs = Percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// Percentile reads the pct-th percentile from an ascending slice.
func Percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// Restore seeds the counters from a saved aggregate. Latency samples and
// per-query counts beyond the saved top lists are not recoverable.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.totalSearches.Store(s.TotalSearches)
	a.failed.Store(s.FailedSearches)
	a.docsInserted.Store(s.DocsInserted)
	a.docsDeleted.Store(s.DocsDeleted)
	a.reloads.Store(s.Reloads)
	a.cacheHits.Store(s.CacheHits)
	a.cacheMisses.Store(s.CacheMisses)
	a.zeroResults.Store(s.ZeroResultCount)

	a.mu.Lock()
	defer a.mu.Unlock()
	for mode, n := range s.SearchesByMode {
		a.byMode[mode] = n
	}
	for _, qc := range s.TopQueries {
		a.queryCounts[qc.Query] = qc.Count
	}
	for _, qc := range s.ZeroResultQueries {
		a.zeroResultQueries[qc.Query] = qc.Count
	}
}
