// Package tracing times the stages of a request (parse, evaluate, rank) and
// writes the finished tree as one debug log line, keyed by request id.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

type spanKey struct{}

type Span struct {
	Name    string
	TraceID string
	start   time.Time

	mu       sync.Mutex
	dur      time.Duration
	ended    bool
	attrs    []slog.Attr
	children []*Span
}

// Start opens a root span and stores it in the returned context.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{Name: name, TraceID: traceID, start: time.Now()}
	return context.WithValue(ctx, spanKey{}, s), s
}

// Child opens a span under the one in ctx. Without a parent it is a
// detached root with no trace id.
func Child(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{Name: name, start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		s.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// End fixes the duration. Later calls keep the first value.
func (s *Span) End() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.dur = time.Since(s.start)
		s.ended = true
	}
	return s.dur
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Attr returns the last value set for key.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.attrs) - 1; i >= 0; i-- {
		if s.attrs[i].Key == key {
			return s.attrs[i].Value.Any(), true
		}
	}
	return nil, false
}

func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Log writes the tree to the request logger at debug level. Each child
// becomes a group named after its stage.
func (s *Span) Log(ctx context.Context) {
	l := logger.FromContext(ctx)
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	l.LogAttrs(ctx, slog.LevelDebug, "trace",
		slog.String("trace_id", s.TraceID),
		s.group(),
	)
}

func (s *Span) group() slog.Attr {
	s.mu.Lock()
	attrs := make([]any, 0, len(s.attrs)+len(s.children)+1)
	attrs = append(attrs, slog.Int64("us", s.dur.Microseconds()))
	for _, a := range s.attrs {
		attrs = append(attrs, a)
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	for _, c := range children {
		attrs = append(attrs, c.group())
	}
	return slog.Group(s.Name, attrs...)
}
