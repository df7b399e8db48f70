package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Type: EventSearch, Query: "apple", Mode: ModeRanked, TotalHits: 2, LatencyMs: 10})
	agg.Record(SearchEvent{Type: EventSearch, Query: "apple", Mode: ModeRanked, TotalHits: 2, LatencyMs: 2, CacheHit: true})
	agg.Record(SearchEvent{Type: EventSearch, Query: "kiwi", Mode: ModeRanked, TotalHits: 0, LatencyMs: 4})
	agg.Record(SearchEvent{Type: EventSearch, Query: "a AND", Mode: ModeBoolean, Failed: true, LatencyMs: 1})
	agg.Record(DocumentEvent{Type: EventDocument, Action: ActionInsert, DocIDs: []int{3, 4}})
	agg.Record(DocumentEvent{Type: EventDocument, Action: ActionDelete, DocIDs: []int{0}})
	agg.Record("not an event")

	s := agg.Stats()
	if s.TotalSearches != 4 {
		t.Errorf("TotalSearches = %d", s.TotalSearches)
	}
	if s.SearchesByMode[ModeRanked] != 3 || s.SearchesByMode[ModeBoolean] != 1 {
		t.Errorf("SearchesByMode = %v", s.SearchesByMode)
	}
	if s.CacheHits != 1 || s.CacheMisses != 2 {
		t.Errorf("hits/misses = %d/%d", s.CacheHits, s.CacheMisses)
	}
	if s.FailedSearches != 1 || s.ZeroResultCount != 1 {
		t.Errorf("failed = %d zero = %d", s.FailedSearches, s.ZeroResultCount)
	}
	if s.DocsInserted != 2 || s.DocsDeleted != 1 {
		t.Errorf("inserted = %d deleted = %d", s.DocsInserted, s.DocsDeleted)
	}
	if len(s.TopQueries) == 0 || s.TopQueries[0] != (QueryCount{Query: "apple", Count: 2}) {
		t.Errorf("TopQueries = %v", s.TopQueries)
	}
	if len(s.ZeroResultQueries) != 1 || s.ZeroResultQueries[0].Query != "kiwi" {
		t.Errorf("ZeroResultQueries = %v", s.ZeroResultQueries)
	}
	if s.P99LatencyMs != 10 {
		t.Errorf("p99 = %d", s.P99LatencyMs)
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		sorted []int64
		pct    int
		want   int64
	}{
		{nil, 50, 0},
		{[]int64{7}, 99, 7},
		{[]int64{1, 2, 3, 4}, 50, 3},
		{[]int64{1, 2, 3, 4}, 100, 4},
	}
	for _, tt := range tests {
		if got := Percentile(tt.sorted, tt.pct); got != tt.want {
			t.Errorf("Percentile(%v, %d) = %d, want %d", tt.sorted, tt.pct, got, tt.want)
		}
	}
}

func TestLatencyWindowIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < maxLatencySamples+10; i++ {
		agg.Record(SearchEvent{Mode: ModeRanked, Query: "q", TotalHits: 1, LatencyMs: 1})
	}
	agg.mu.RLock()
	n := len(agg.latencies)
	agg.mu.RUnlock()
	if n != maxLatencySamples {
		t.Errorf("latency samples = %d", n)
	}
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	ctx := context.Background()

	search, _ := json.Marshal(SearchEvent{Type: EventSearch, Query: "apple", Mode: ModeBoolean, TotalHits: 1})
	doc, _ := json.Marshal(DocumentEvent{Type: EventDocument, Action: ActionReload})
	for _, value := range [][]byte{search, doc, []byte(`{"type":"other"}`), []byte(`garbage`)} {
		if err := handle(ctx, nil, value); err != nil {
			t.Errorf("handle(%s) = %v", value, err)
		}
	}
	s := agg.Stats()
	if s.TotalSearches != 1 || s.Reloads != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRestore(t *testing.T) {
	src := NewAggregator()
	src.Record(SearchEvent{Query: "apple", Mode: ModeRanked, TotalHits: 1})
	src.Record(DocumentEvent{Action: ActionInsert, DocIDs: []int{1}})

	dst := NewAggregator()
	dst.Restore(src.Stats())
	dst.Record(SearchEvent{Query: "apple", Mode: ModeRanked, TotalHits: 1})

	s := dst.Stats()
	if s.TotalSearches != 2 || s.DocsInserted != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.TopQueries[0].Count != 2 {
		t.Errorf("TopQueries = %v", s.TopQueries)
	}
}

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	block   chan struct{}
	fail    bool
}

func (f *fakePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	batch := make([]kafka.Event, len(events))
	copy(batch, events)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestCollectorPublishesInBatches(t *testing.T) {
	pub := &fakePublisher{}
	agg := NewAggregator()
	c := NewCollector(agg, pub, CollectorConfig{BatchSize: 2, FlushInterval: time.Hour})
	c.Start(context.Background())

	for i := 0; i < 5; i++ {
		c.Track(SearchEvent{Type: EventSearch, Query: "apple", Mode: ModeRanked})
	}
	c.Close()

	if got := pub.count(); got != 5 {
		t.Errorf("published %d events, want 5", got)
	}
	if agg.Stats().TotalSearches != 5 {
		t.Errorf("local aggregate = %d", agg.Stats().TotalSearches)
	}
	pub.mu.Lock()
	key := pub.batches[0][0].Key
	pub.mu.Unlock()
	if key != "search:ranked" {
		t.Errorf("key = %q", key)
	}

	// Track after Close is a silent no-op for the publisher.
	c.Track(SearchEvent{Query: "late", Mode: ModeRanked})
	c.Close()
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	var dropped atomic.Int64
	c := NewCollector(nil, pub, CollectorConfig{
		BufferSize:    1,
		BatchSize:     1,
		FlushInterval: time.Hour,
		OnDrop:        func() { dropped.Add(1) },
	})
	c.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			c.Track(DocumentEvent{Action: ActionInsert, DocIDs: []int{i}})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Track blocked on a full buffer")
	}
	if dropped.Load() == 0 {
		t.Error("expected drops with a blocked publisher")
	}
	close(pub.block)
	c.Close()
}

func TestCollectorWithoutPublisher(t *testing.T) {
	agg := NewAggregator()
	c := NewCollector(agg, nil, CollectorConfig{})
	c.Start(context.Background())
	c.Track(SearchEvent{Query: "apple", Mode: ModeBoolean, TotalHits: 1})
	c.Close()
	if agg.Stats().TotalSearches != 1 {
		t.Error("local aggregate not updated")
	}

	var nilCollector *Collector
	nilCollector.Track(SearchEvent{})
}

func TestCollectorPublishErrorDoesNotStop(t *testing.T) {
	pub := &fakePublisher{fail: true}
	c := NewCollector(nil, pub, CollectorConfig{BatchSize: 1, FlushInterval: time.Hour})
	c.Start(context.Background())
	c.Track(SearchEvent{Query: "a"})
	c.Track(SearchEvent{Query: "b"})
	c.Close()
	if pub.count() != 0 {
		t.Errorf("count = %d", pub.count())
	}
}

type fakeLister struct {
	snaps []Snapshot
	err   error
}

func (f fakeLister) List(_ context.Context, limit int) ([]Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.snaps) {
		return f.snaps[:limit], nil
	}
	return f.snaps, nil
}

func TestHandler(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Query: "apple", Mode: ModeRanked, TotalHits: 1})
	snaps := []Snapshot{{CapturedAt: time.Unix(2, 0).UTC()}, {CapturedAt: time.Unix(1, 0).UTC()}}

	tests := []struct {
		name   string
		h      *Handler
		call   func(h *Handler) http.HandlerFunc
		url    string
		status int
	}{
		{"stats", NewHandler(agg, nil), func(h *Handler) http.HandlerFunc { return h.Stats }, "/api/v1/analytics", 200},
		{"snapshots disabled", NewHandler(agg, nil), func(h *Handler) http.HandlerFunc { return h.Snapshots }, "/api/v1/analytics/snapshots", 404},
		{"snapshots", NewHandler(agg, fakeLister{snaps: snaps}), func(h *Handler) http.HandlerFunc { return h.Snapshots }, "/api/v1/analytics/snapshots?limit=1", 200},
		{"bad limit", NewHandler(agg, fakeLister{}), func(h *Handler) http.HandlerFunc { return h.Snapshots }, "/api/v1/analytics/snapshots?limit=0", 400},
		{"lister error", NewHandler(agg, fakeLister{err: errors.New("db")}), func(h *Handler) http.HandlerFunc { return h.Snapshots }, "/api/v1/analytics/snapshots", 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.call(tt.h)(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
		})
	}

	rec := httptest.NewRecorder()
	NewHandler(agg, fakeLister{snaps: snaps}).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=1", nil))
	var body struct {
		Snapshots []Snapshot `json:"snapshots"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Snapshots) != 1 || !body.Snapshots[0].CapturedAt.Equal(snaps[0].CapturedAt) {
		t.Errorf("snapshots = %+v", body.Snapshots)
	}
}
