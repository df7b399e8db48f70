// Package metadata is the structured side-store: titled documents with an
// author and category in PostgreSQL, searched with case-insensitive
// substring matching per field.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

const (
	DefaultLimit  = 5
	MaxLimit      = 100
	snippetLength = 100
)

// Fields lists the searchable columns.
var Fields = []string{"title", "content", "author", "category"}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
    id         BIGSERIAL PRIMARY KEY,
    title      TEXT NOT NULL,
    content    TEXT NOT NULL,
    author     TEXT,
    category   TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at DESC)`,
}

type Record struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author,omitempty"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit is a search result row with the first characters of the content.
type Hit struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	Category  string    `json:"category,omitempty"`
	Snippet   string    `json:"snippet"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter ANDs every non-empty field.
type Filter struct {
	Title    string
	Content  string
	Author   string
	Category string
	Limit    int
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "metadata-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("creating metadata schema: %w", err)
			}
		}
		return nil
	})
}

// Add stores rec and returns its id. Title and content are required.
func (s *Store) Add(ctx context.Context, rec Record) (int64, error) {
	if strings.TrimSpace(rec.Title) == "" {
		return 0, apperrors.InvalidInput("title is required")
	}
	if strings.TrimSpace(rec.Content) == "" {
		return 0, apperrors.InvalidInput("content is required")
	}
	var id int64
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO documents (title, content, author, category)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		rec.Title, rec.Content, nullable(rec.Author), nullable(rec.Category),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting metadata record: %w", err)
	}
	s.logger.Debug("metadata record added", "id", id)
	return id, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	var rec Record
	var author, category sql.NullString
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, title, content, author, category, created_at FROM documents WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.Title, &rec.Content, &author, &category, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying metadata record %d: %w", id, err)
	}
	rec.Author, rec.Category = author.String, category.String
	return &rec, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting metadata record %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting metadata record %d: %w", id, err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// SearchField matches term anywhere in one column, ignoring case.
func (s *Store) SearchField(ctx context.Context, field, term string, limit int) ([]Hit, error) {
	query, args, err := buildFieldQuery(field, term, limit)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, query, args)
}

func (s *Store) AdvancedSearch(ctx context.Context, f Filter) ([]Hit, error) {
	query, args := buildAdvancedQuery(f)
	return s.search(ctx, query, args)
}

func (s *Store) search(ctx context.Context, query string, args []any) ([]Hit, error) {
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching metadata: %w", err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		var author, category sql.NullString
		if err := rows.Scan(&h.ID, &h.Title, &author, &category, &h.Snippet, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning metadata row: %w", err)
		}
		h.Author, h.Category = author.String, category.String
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metadata rows: %w", err)
	}
	return hits, nil
}

const selectHits = `SELECT id, title, author, category, LEFT(content, %d), created_at FROM documents`

func buildFieldQuery(field, term string, limit int) (string, []any, error) {
	if !validField(field) {
		return "", nil, apperrors.InvalidInput("field %q must be one of %s", field, strings.Join(Fields, ", "))
	}
	query := fmt.Sprintf(selectHits, snippetLength) +
		fmt.Sprintf(` WHERE %s ILIKE $1 ESCAPE '\'`, field) +
		` ORDER BY created_at DESC, id DESC LIMIT $2`
	return query, []any{likePattern(term), clampLimit(limit)}, nil
}

func buildAdvancedQuery(f Filter) (string, []any) {
	var conds []string
	var args []any
	for _, c := range []struct{ field, term string }{
		{"title", f.Title},
		{"content", f.Content},
		{"author", f.Author},
		{"category", f.Category},
	} {
		if c.term == "" {
			continue
		}
		args = append(args, likePattern(c.term))
		conds = append(conds, fmt.Sprintf(`%s ILIKE $%d ESCAPE '\'`, c.field, len(args)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, selectHits, snippetLength)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	args = append(args, clampLimit(f.Limit))
	fmt.Fprintf(&b, " ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))
	return b.String(), args
}

func validField(field string) bool {
	for _, f := range Fields {
		if f == field {
			return true
		}
	}
	return false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func notFound(id int64) error {
	return apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "metadata record %d", id)
}
