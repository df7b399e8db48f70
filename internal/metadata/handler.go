package metadata

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

// Repository is implemented by *Store.
type Repository interface {
	Add(ctx context.Context, rec Record) (int64, error)
	Get(ctx context.Context, id int64) (*Record, error)
	Delete(ctx context.Context, id int64) error
	SearchField(ctx context.Context, field, term string, limit int) ([]Hit, error)
	AdvancedSearch(ctx context.Context, f Filter) ([]Hit, error)
}

type Handler struct {
	repo   Repository
	logger *slog.Logger
}

func NewHandler(repo Repository) *Handler {
	return &Handler{
		repo:   repo,
		logger: slog.Default().With("component", "metadata-handler"),
	}
}

type addRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Author   string `json:"author"`
	Category string `json:"category"`
}

type searchResponse struct {
	Results []Hit `json:"results"`
	Count   int   `json:"count"`
}

// Add serves POST /api/v1/metadata.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, err := h.repo.Add(r.Context(), Record{
		Title:    req.Title,
		Content:  req.Content,
		Author:   req.Author,
		Category: req.Category,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// Get serves GET /api/v1/metadata/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// Delete serves DELETE /api/v1/metadata/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "deleted"})
}

// Search serves GET /api/v1/metadata/search?field=&q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := h.limit(w, q.Get("limit"))
	if !ok {
		return
	}
	hits, err := h.repo.SearchField(r.Context(), q.Get("field"), q.Get("q"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, searchResponse{Results: hits, Count: len(hits)})
}

// Advanced serves GET /api/v1/metadata/search/advanced with any of the
// title, content, author and category parameters.
func (h *Handler) Advanced(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := h.limit(w, q.Get("limit"))
	if !ok {
		return
	}
	hits, err := h.repo.AdvancedSearch(r.Context(), Filter{
		Title:    q.Get("title"),
		Content:  q.Get("content"),
		Author:   q.Get("author"),
		Category: q.Get("category"),
		Limit:    limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, searchResponse{Results: hits, Count: len(hits)})
}

func (h *Handler) limit(w http.ResponseWriter, s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		h.writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= 500 {
		logger.FromContext(r.Context()).Error("metadata request failed", "error", err)
		h.writeError(w, status, "metadata store unavailable")
		return
	}
	h.writeError(w, status, err.Error())
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
