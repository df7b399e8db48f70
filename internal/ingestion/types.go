// Package ingestion defines the request and response bodies of the document
// API.
package ingestion

import "encoding/json"

// IngestRequest keeps content raw so a non-string value can be rejected
// with a field error instead of a generic decode failure.
type IngestRequest struct {
	Content json.RawMessage `json:"content"`
}

type IngestResponse struct {
	ID int `json:"id"`
}

type BatchIngestRequest struct {
	Documents []json.RawMessage `json:"documents"`
}

type BatchIngestResponse struct {
	IDs []int `json:"ids"`
}

type DocumentResponse struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

type BatchDeleteRequest struct {
	IDs []int `json:"ids"`
}

// BatchDeleteResponse reports every id that was missing rather than failing
// on the first one.
type BatchDeleteResponse struct {
	DeletedCount int   `json:"deleted_count"`
	NotFoundIDs  []int `json:"not_found_ids"`
}

type GrabRequest struct {
	URL string `json:"url"`
}

type GrabResponse struct {
	URL    string `json:"url"`
	IDs    []int  `json:"ids"`
	Chunks int    `json:"chunks"`
}
