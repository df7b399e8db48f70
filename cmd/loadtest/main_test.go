package main

import (
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, 1},
		{50, 5},
		{90, 9},
		{99, 10},
		{100, 10},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if percentile(nil, 50) != 0 {
		t.Error("empty input")
	}
}

func TestEndpointStatsRecord(t *testing.T) {
	s := newEndpointStats()
	s.record(time.Millisecond, 200, true, nil)
	s.record(time.Millisecond, 400, false, nil)
	s.record(0, 0, false, errTest{})
	if s.total.Load() != 3 || s.success.Load() != 1 || s.errors.Load() != 2 || s.cacheHits.Load() != 1 {
		t.Errorf("total=%d success=%d errors=%d hits=%d", s.total.Load(), s.success.Load(), s.errors.Load(), s.cacheHits.Load())
	}
	if len(s.latencies) != 2 || s.statusCodes[400] != 1 {
		t.Errorf("latencies=%v codes=%v", s.latencies, s.statusCodes)
	}
}

type errTest struct{}

func (errTest) Error() string { return "dial failed" }
