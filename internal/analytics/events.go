package analytics

import "time"

type EventType string

const (
	EventSearch   EventType = "search"
	EventDocument EventType = "document"
)

const (
	ModeRanked  = "ranked"
	ModeBoolean = "boolean"
)

const (
	ActionInsert = "insert"
	ActionDelete = "delete"
	ActionReload = "reload"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Mode      string    `json:"mode"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Failed    bool      `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// DocumentEvent records a committed insert, delete or reload.
type DocumentEvent struct {
	Type      EventType `json:"type"`
	Action    string    `json:"action"`
	DocIDs    []int     `json:"doc_ids,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// envelope is decoded first to dispatch a raw event by type.
type envelope struct {
	Type EventType `json:"type"`
}
