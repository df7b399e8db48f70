// Command loadtest drives concurrent ranked and boolean queries against a
// running search server and reports throughput, cache hits and latency
// percentiles per endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	modeRanked  = "ranked"
	modeBoolean = "boolean"
)

type Config struct {
	BaseURL      string
	Concurrency  int
	Duration     time.Duration
	RPS          float64
	BooleanRatio float64
	Limit        int
}

var rankedQueries = []string{
	"apple",
	"banana cherry",
	"inverted index",
	"query processing",
	"ranking algorithm",
	"full text search",
	"document ingestion",
	"cache",
}

var booleanQueries = []string{
	"apple AND banana",
	"apple OR cherry",
	"apple NOT cherry",
	"(banana OR grape) AND cherry",
	"index AND NOT cache",
	"search OR query",
}

type endpointStats struct {
	total     atomic.Int64
	success   atomic.Int64
	errors    atomic.Int64
	cacheHits atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func newEndpointStats() *endpointStats {
	return &endpointStats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

func (s *endpointStats) record(d time.Duration, status int, cached bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	if cached {
		s.cacheHits.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	s.mu.Unlock()
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&cfg.RPS, "rps", 0, "overall request rate cap, 0 for unlimited")
	flag.Float64Var(&cfg.BooleanRatio, "boolean-ratio", 0.3, "share of requests sent to the boolean endpoint")
	flag.IntVar(&cfg.Limit, "limit", 10, "result limit per query")
	flag.Parse()

	fmt.Println("=== Document Search Load Test ===")
	fmt.Printf("Target:        %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency:   %d\n", cfg.Concurrency)
	fmt.Printf("Duration:      %s\n", cfg.Duration)
	fmt.Printf("Boolean ratio: %.2f\n", cfg.BooleanRatio)
	if cfg.RPS > 0 {
		fmt.Printf("Rate cap:      %.1f req/s\n", cfg.RPS)
	}
	fmt.Println()

	stats := runLoadTest(cfg)
	var total int64
	for _, mode := range []string{modeRanked, modeBoolean} {
		total += printReport(mode, stats[mode], cfg.Duration)
	}
	if total == 0 {
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func runLoadTest(cfg Config) map[string]*endpointStats {
	stats := map[string]*endpointStats{
		modeRanked:  newEndpointStats(),
		modeBoolean: newEndpointStats(),
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Concurrency)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(workerID)))
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				mode, query, path := modeRanked, rankedQueries[rng.Intn(len(rankedQueries))], "/api/v1/search"
				if rng.Float64() < cfg.BooleanRatio {
					mode, query, path = modeBoolean, booleanQueries[rng.Intn(len(booleanQueries))], "/api/v1/search/boolean"
				}
				target := fmt.Sprintf("%s%s?q=%s&limit=%d", cfg.BaseURL, path, url.QueryEscape(query), cfg.Limit)

				start := time.Now()
				status, cached, err := doSearch(ctx, client, target)
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return
				}
				stats[mode].record(time.Since(start), status, cached, err)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func doSearch(ctx context.Context, client *http.Client, target string) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	var body struct {
		Cached bool `json:"cached"`
	}
	if resp.StatusCode == http.StatusOK {
		_ = json.NewDecoder(resp.Body).Decode(&body)
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, body.Cached, nil
}

func printReport(mode string, s *endpointStats, duration time.Duration) int64 {
	total := s.total.Load()
	fmt.Printf("=== %s ===\n", mode)
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", s.success.Load())
	fmt.Printf("Errors:          %d\n", s.errors.Load())
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(s.errors.Load())/float64(total)*100)
		fmt.Printf("Cache Hit Rate:  %.2f%%\n", float64(s.cacheHits.Load())/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	s.mu.Lock()
	latencies := make([]time.Duration, len(s.latencies))
	copy(latencies, s.latencies)
	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(s.statusCodes))
	for code, n := range s.statusCodes {
		counts[code] = n
	}
	s.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		var sumSquared float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sumSquared += diff * diff
		}
		fmt.Printf("Latency min/avg/max: %s / %s / %s\n", latencies[0], avg, latencies[len(latencies)-1])
		fmt.Printf("P50 %s  P90 %s  P95 %s  P99 %s\n",
			percentile(latencies, 50), percentile(latencies, 90),
			percentile(latencies, 95), percentile(latencies, 99))
		fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, counts[code])
	}
	fmt.Println()
	return total
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
