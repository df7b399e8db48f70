package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrDocumentNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("delete 7: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"parse", fmt.Errorf("at 3: %w", ErrQueryParse), http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"timeout", ErrTimeout, http.StatusGatewayTimeout},
		{"cache", ErrCacheUnavailable, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"app error wins", New(ErrInternal, http.StatusTeapot, "x"), http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("handler: %w", NotFound(42))
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatal("expected errors.Is to find ErrDocumentNotFound")
	}
	if got := err.Error(); got != "handler: document not found: document 42" {
		t.Errorf("Error() = %q", got)
	}
	if HTTPStatusCode(InvalidInput("content must be a string")) != http.StatusBadRequest {
		t.Error("InvalidInput should map to 400")
	}
}
