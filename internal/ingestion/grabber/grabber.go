// Package grabber turns a web page into documents: it fetches the page,
// keeps the text of its <p> elements and stores it in fixed-size chunks.
package grabber

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

var (
	scriptRegex        = regexp.MustCompile(`(?is)<script\b.*?</script\s*>|<style\b.*?</style\s*>`)
	paragraphRegex     = regexp.MustCompile(`(?is)<p(?:\s[^>]*)?>(.*?)</p\s*>`)
	repeatedSpaceRegex = regexp.MustCompile(`\s+`)

	errPrivateAddress = errors.New("address is in a private network")
)

// Inserter stores the chunks of a page, normally *indexer.Engine.
type Inserter interface {
	InsertBatch(ctx context.Context, texts []string) ([]int, error)
}

type Result struct {
	URL    string
	Chunks []string
	IDs    []int
}

type Grabber struct {
	docs       Inserter
	client     *http.Client
	cfg        config.IngestConfig
	policyPool sync.Pool
	logger     *slog.Logger
}

func New(docs Inserter, cfg config.IngestConfig) *Grabber {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	if !cfg.AllowPrivate {
		dialer.Control = rejectPrivate
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.Proxy = nil

	return &Grabber{
		docs:   docs,
		client: &http.Client{Transport: transport},
		cfg:    cfg,
		policyPool: sync.Pool{
			New: func() any { return bluemonday.StrictPolicy() },
		},
		logger: slog.Default().With("component", "grabber"),
	}
}

// Grab fetches url and inserts its paragraph text as documents.
func (g *Grabber) Grab(ctx context.Context, url string) (*Result, error) {
	page, err := g.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	text := g.Extract(page)
	if text == "" {
		return nil, apperrors.InvalidInput("no paragraph text found at %s", url)
	}
	chunks := Chunk(text, g.cfg.ChunkSize)
	ids, err := g.docs.InsertBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("storing chunks of %s: %w", url, err)
	}
	logger.FromContext(ctx).Info("page grabbed",
		"url", url,
		"bytes", len(page),
		"chunks", len(chunks),
		"first_id", ids[0],
	)
	return &Result{URL: url, Chunks: chunks, IDs: ids}, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// Fetch downloads an HTML page, retrying network failures and 5xx answers.
func (g *Grabber) Fetch(ctx context.Context, url string) (string, error) {
	var page atomic.Pointer[string]
	err := resilience.Retry(ctx, "grab", resilience.Policy{
		Attempts:  3,
		Base:      200 * time.Millisecond,
		Retryable: retryable,
	}, func() error {
		return resilience.WithTimeout(ctx, g.cfg.FetchTimeout, "fetch "+url, func(ctx context.Context) error {
			body, err := g.fetchOnce(ctx, url)
			if err == nil {
				page.Store(&body)
			}
			return err
		})
	})
	if err == nil {
		return *page.Load(), nil
	}
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return "", appErr
	case errors.Is(err, errPrivateAddress):
		return "", apperrors.InvalidInput("%s resolves to a private network address", url)
	case errors.Is(err, context.DeadlineExceeded):
		return "", apperrors.Newf(apperrors.ErrTimeout, http.StatusGatewayTimeout, "fetching %s", url)
	}
	return "", apperrors.Newf(apperrors.ErrInternal, http.StatusBadGateway, "fetching %s: %v", url, err)
}

func (g *Grabber) fetchOnce(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apperrors.InvalidInput("bad url %q: %v", url, err)
	}
	req.Header.Set("Accept", "text/html")
	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &statusError{code: resp.StatusCode}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", apperrors.InvalidInput("%s is %s, not html", url, ct)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, g.cfg.MaxBodyBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(body)) > g.cfg.MaxBodyBytes {
		return "", apperrors.InvalidInput("%s exceeds %d bytes", url, g.cfg.MaxBodyBytes)
	}
	return string(body), nil
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	var appErr *apperrors.AppError
	return !errors.As(err, &appErr) && !errors.Is(err, errPrivateAddress)
}

// Extract returns the text of every <p> element with tags stripped,
// entities decoded and whitespace collapsed, joined by single spaces.
func (g *Grabber) Extract(page string) string {
	policy := g.policyPool.Get().(*bluemonday.Policy)
	defer g.policyPool.Put(policy)

	page = scriptRegex.ReplaceAllString(page, "")
	var parts []string
	for _, m := range paragraphRegex.FindAllStringSubmatch(page, -1) {
		text := html.UnescapeString(policy.Sanitize(m[1]))
		text = strings.TrimSpace(repeatedSpaceRegex.ReplaceAllString(text, " "))
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Chunk splits text into pieces of at most n characters, dropping pieces
// that are only whitespace.
func Chunk(text string, n int) []string {
	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/n+1)
	for start := 0; start < len(runes); start += n {
		end := min(start+n, len(runes))
		piece := string(runes[start:end])
		if strings.TrimSpace(piece) != "" {
			chunks = append(chunks, piece)
		}
	}
	return chunks
}

func rejectPrivate(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.Equal(net.IPv4bcast) {
		return errPrivateAddress
	}
	return nil
}
