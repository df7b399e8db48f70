// Package handler serves the document API: insert, fetch, delete and
// web page ingestion.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/grabber"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

const maxRequestBytes = 8 << 20

// Documents is the mutating side of *indexer.Engine.
type Documents interface {
	Insert(ctx context.Context, text string) (int, error)
	InsertBatch(ctx context.Context, texts []string) ([]int, error)
	Get(ctx context.Context, id int) (string, error)
	Delete(ctx context.Context, id int) error
	DeleteBatch(ctx context.Context, ids []int) ([]int, error)
}

// Grabber ingests a web page; nil disables the grab endpoint.
type Grabber interface {
	Grab(ctx context.Context, url string) (*grabber.Result, error)
}

type Handler struct {
	docs    Documents
	grabber Grabber
	logger  *slog.Logger
}

func New(docs Documents, g Grabber) *Handler {
	return &Handler{
		docs:    docs,
		grabber: g,
		logger:  slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest serves POST /api/v1/documents.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestion.IngestRequest
	if !h.decode(w, r, &req) {
		return
	}
	text, err := validator.ValidateIngestRequest(&req)
	if err != nil {
		h.writeValidation(w, err)
		return
	}
	id, err := h.docs.Insert(r.Context(), text)
	if err != nil {
		h.fail(w, r, "insert failed", err)
		return
	}
	logger.FromContext(r.Context()).Info("document ingested", "doc_id", id, "bytes", len(text))
	h.writeJSON(w, http.StatusCreated, ingestion.IngestResponse{ID: id})
}

// IngestBatch serves POST /api/v1/documents/batch. Either every document is
// stored or none is.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var req ingestion.BatchIngestRequest
	if !h.decode(w, r, &req) {
		return
	}
	texts, err := validator.ValidateBatch(&req)
	if err != nil {
		h.writeValidation(w, err)
		return
	}
	ids, err := h.docs.InsertBatch(r.Context(), texts)
	if err != nil {
		h.fail(w, r, "batch insert failed", err)
		return
	}
	logger.FromContext(r.Context()).Info("documents ingested", "count", len(ids))
	h.writeJSON(w, http.StatusCreated, ingestion.BatchIngestResponse{IDs: ids})
}

// Get serves GET /api/v1/documents/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	text, err := h.docs.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, ingestion.DocumentResponse{ID: id, Content: text})
}

// Delete serves DELETE /api/v1/documents/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.docs.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete failed", err)
		return
	}
	logger.FromContext(r.Context()).Info("document deleted", "doc_id", id)
	h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "deleted"})
}

// DeleteBatch serves POST /api/v1/documents/batch/delete. Missing ids are
// reported, not treated as a failure.
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	var req ingestion.BatchDeleteRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validator.ValidateBatchDelete(&req); err != nil {
		h.writeValidation(w, err)
		return
	}
	notFound, err := h.docs.DeleteBatch(r.Context(), req.IDs)
	if err != nil {
		h.fail(w, r, "batch delete failed", err)
		return
	}
	if notFound == nil {
		notFound = []int{}
	}
	deleted := distinct(req.IDs) - distinct(notFound)
	logger.FromContext(r.Context()).Info("documents deleted", "count", deleted, "not_found", len(notFound))
	h.writeJSON(w, http.StatusOK, ingestion.BatchDeleteResponse{
		DeletedCount: deleted,
		NotFoundIDs:  notFound,
	})
}

// Grab serves POST /api/v1/documents/grab.
func (h *Handler) Grab(w http.ResponseWriter, r *http.Request) {
	if h.grabber == nil {
		h.writeError(w, http.StatusNotFound, "page grabbing is disabled")
		return
	}
	var req ingestion.GrabRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validator.ValidateGrabRequest(&req); err != nil {
		h.writeValidation(w, err)
		return
	}
	res, err := h.grabber.Grab(r.Context(), req.URL)
	if err != nil {
		h.fail(w, r, "grab failed", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ingestion.GrabResponse{URL: res.URL, IDs: res.IDs, Chunks: len(res.Chunks)})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": map[string]string{typeErr.Field: "has the wrong type"},
			})
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 0 {
		h.writeError(w, http.StatusBadRequest, "id must be a non-negative integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= 500 {
		logger.FromContext(r.Context()).Error(msg, "error", err, "status_code", status)
		h.writeError(w, status, msg)
		return
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		h.writeError(w, status, appErr.Message)
		return
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func distinct(ids []int) int {
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}
