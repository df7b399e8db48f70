// Package validator checks document API requests and returns per-field
// error details.
package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const (
	maxBatchSize = 1000
	maxURLLength = 2048
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest returns the document text of req.
func ValidateIngestRequest(req *ingestion.IngestRequest) (string, error) {
	text, msg := content(req.Content)
	if msg != "" {
		return "", &ValidationError{Fields: map[string]string{"content": msg}}
	}
	return text, nil
}

// ValidateBatch returns the texts of a batch, reporting each bad entry as
// documents[i].
func ValidateBatch(req *ingestion.BatchIngestRequest) ([]string, error) {
	errs := make(map[string]string)
	switch {
	case len(req.Documents) == 0:
		errs["documents"] = "at least one document is required"
	case len(req.Documents) > maxBatchSize:
		errs["documents"] = fmt.Sprintf("at most %d documents per batch", maxBatchSize)
	}
	texts := make([]string, 0, len(req.Documents))
	for i, raw := range req.Documents {
		text, msg := content(raw)
		if msg != "" {
			errs[fmt.Sprintf("documents[%d]", i)] = msg
			continue
		}
		texts = append(texts, text)
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return texts, nil
}

func ValidateBatchDelete(req *ingestion.BatchDeleteRequest) error {
	errs := make(map[string]string)
	switch {
	case len(req.IDs) == 0:
		errs["ids"] = "at least one id is required"
	case len(req.IDs) > maxBatchSize:
		errs["ids"] = fmt.Sprintf("at most %d ids per batch", maxBatchSize)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateGrabRequest accepts absolute http and https URLs.
func ValidateGrabRequest(req *ingestion.GrabRequest) error {
	raw := strings.TrimSpace(req.URL)
	msg := ""
	if raw == "" {
		msg = "url is required"
	} else if len(raw) > maxURLLength {
		msg = fmt.Sprintf("url must be at most %d characters", maxURLLength)
	} else if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		msg = "url must be an absolute http or https URL"
	}
	if msg != "" {
		return &ValidationError{Fields: map[string]string{"url": msg}}
	}
	req.URL = raw
	return nil
}

func content(raw json.RawMessage) (string, string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", "content is required"
	}
	if raw[0] != '"' {
		return "", "content must be a string"
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", "content must be a string"
	}
	if err := indexer.ValidateContent(text); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return "", appErr.Message
		}
		return "", err.Error()
	}
	return text, ""
}
