package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type searchBody struct {
	TotalHits int  `json:"total_hits"`
	Cached    bool `json:"cached"`
	Results   []struct {
		DocID int `json:"doc_id"`
	} `json:"results"`
}

// TestDocumentLifecycle drives a real listener through
// ingest → search → delete → stale cache → clear → search.
func TestDocumentLifecycle(t *testing.T) {
	h, _, _ := newServer(t, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()
	client := &http.Client{Timeout: 5 * time.Second}

	do := func(method, path, body string, wantStatus int, out any) {
		t.Helper()
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != wantStatus {
			t.Fatalf("%s %s = %d, want %d: %s", method, path, resp.StatusCode, wantStatus, raw)
		}
		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				t.Fatalf("%s %s: decode: %v", method, path, err)
			}
		}
	}

	var created struct {
		ID int `json:"id"`
	}
	do("POST", "/api/v1/documents", `{"content":"kiwi mango smoothie"}`, http.StatusCreated, &created)
	if created.ID != 3 {
		t.Fatalf("new id = %d, want 3", created.ID)
	}

	var ranked searchBody
	do("GET", "/api/v1/search?q=kiwi", "", 200, &ranked)
	if ranked.TotalHits != 1 || ranked.Results[0].DocID != 3 || ranked.Cached {
		t.Fatalf("ranked = %+v", ranked)
	}

	var boolean searchBody
	do("GET", "/api/v1/search/boolean?q=banana+NOT+cherry", "", 200, &boolean)
	if boolean.TotalHits != 1 || boolean.Results[0].DocID != 0 {
		t.Errorf("boolean = %+v", boolean)
	}

	do("DELETE", "/api/v1/documents/3", "", 200, nil)
	do("GET", "/api/v1/documents/3", "", 404, nil)

	var stale searchBody
	do("GET", "/api/v1/search?q=kiwi", "", 200, &stale)
	if !stale.Cached || stale.TotalHits != 1 {
		t.Errorf("expected stale cached hit, got %+v", stale)
	}

	do("DELETE", "/api/v1/cache", "", 200, nil)
	var fresh searchBody
	do("GET", "/api/v1/search?q=kiwi", "", 200, &fresh)
	if fresh.Cached || fresh.TotalHits != 0 || len(fresh.Results) != 0 {
		t.Errorf("after clear = %+v", fresh)
	}

	var stats struct {
		TotalSearches int64 `json:"total_searches"`
		CacheHits     int64 `json:"cache_hits"`
	}
	do("GET", "/api/v1/analytics", "", 200, &stats)
	if stats.TotalSearches != 4 || stats.CacheHits != 1 {
		t.Errorf("analytics = %+v", stats)
	}

	var cacheStats map[string]any
	do("GET", "/api/v1/cache/stats", "", 200, &cacheStats)
	for _, field := range []string{"hits", "misses", "entries", "hit_rate"} {
		if _, ok := cacheStats[field]; !ok {
			t.Errorf("cache stats missing %q: %v", field, cacheStats)
		}
	}
}
