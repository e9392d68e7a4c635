// Package fetch downloads the watched document with conditional GET.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "internwatch/1.0 (+https://github.com)"
	defaultMaxBytes  = 8 << 20
)

// ErrTooLarge is returned when the body exceeds Config.MaxBytes.
var ErrTooLarge = errors.New("document exceeds size limit")

// StatusError is a non-2xx, non-304 response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string // first bytes of the body, for logs
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %s", e.URL, e.Status)
}

// ETagCache remembers the validator of the last document that was fully
// processed.
type ETagCache interface {
	LoadETag(ctx context.Context) (string, error)
	SaveETag(ctx context.Context, etag string) error
}

type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int64
}

type Fetcher struct {
	cfg     Config
	hc      *http.Client
	cache   ETagCache
	limiter *HostLimiter
	log     zerolog.Logger
}

// New builds a Fetcher. cache and limiter may be nil.
func New(cfg Config, cache ETagCache, limiter *HostLimiter, log zerolog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	return &Fetcher{
		cfg:     cfg,
		hc:      &http.Client{Timeout: cfg.Timeout},
		cache:   cache,
		limiter: limiter,
		log:     log.With().Str("component", "fetch").Logger(),
	}
}

// Document is the result of one fetch.
type Document struct {
	Text        string
	ETag        string
	NotModified bool

	commit func(context.Context) error
}

// Commit records the document's ETag so the next fetch can be conditional.
// Call it only once the document has been fully handled.
func (d Document) Commit(ctx context.Context) error {
	if d.commit == nil {
		return nil
	}
	return d.commit(ctx)
}

func (f *Fetcher) Fetch(ctx context.Context) (Document, error) {
	if err := f.limiter.WaitURL(ctx, f.cfg.URL); err != nil {
		return Document{}, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	var cached string
	if f.cache != nil {
		cached, err = f.cache.LoadETag(ctx)
		if err != nil {
			// a lost validator only costs a full download
			f.log.Warn().Err(err).Msg("load etag failed")
			cached = ""
		}
		if cached != "" {
			req.Header.Set("If-None-Match", cached)
		}
	}

	start := time.Now()
	resp, err := f.hc.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("GET %s: %w", f.cfg.URL, err)
	}
	defer resp.Body.Close()

	f.log.Debug().
		Str("url", f.cfg.URL).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("fetched")

	if resp.StatusCode == http.StatusNotModified {
		return Document{ETag: cached, NotModified: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Document{}, &StatusError{
			URL:        f.cfg.URL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(b),
		}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return Document{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > f.cfg.MaxBytes {
		return Document{}, ErrTooLarge
	}

	doc := Document{Text: string(b), ETag: resp.Header.Get("ETag")}
	if f.cache != nil && doc.ETag != "" && doc.ETag != cached {
		etag := doc.ETag
		doc.commit = func(ctx context.Context) error {
			return f.cache.SaveETag(ctx, etag)
		}
	}
	return doc, nil
}
