// Package fetcher performs conditional HTTP GETs with a fixed user agent,
// a hard timeout and a body size cap, and records every attempt in the
// fetch audit log.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/casaval/casaval/internal/common"
	"github.com/casaval/casaval/internal/interfaces"
	"github.com/casaval/casaval/internal/models"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxBodySize = 10 * 1024 * 1024 // 10 MB
)

// Result is the outcome of one fetch
type Result struct {
	StatusCode  int
	Body        []byte
	NotModified bool
}

// Fetcher downloads pages. It sends If-None-Match / If-Modified-Since from
// the host cache so unchanged pages come back as cheap 304s, and refreshes
// the cache from successful responses.
type Fetcher struct {
	httpClient  *http.Client
	storage     interfaces.FetchStorage
	userAgent   string
	maxBodySize int64
	logger      arbor.ILogger
}

// Options tunes a Fetcher. Zero values fall back to defaults.
type Options struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int64
	Client      *http.Client
}

// New creates a Fetcher
func New(storage interfaces.FetchStorage, opts Options, logger arbor.ILogger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaultMaxBodySize
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Fetcher{
		httpClient:  client,
		storage:     storage,
		userAgent:   opts.UserAgent,
		maxBodySize: opts.MaxBodySize,
		logger:      logger,
	}
}

// Fetch performs one conditional GET. Non-2xx, non-304 statuses are
// returned as errors so the caller's retry policy applies uniformly.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	cached, err := f.storage.GetHostCache(ctx, rawURL)
	if err != nil {
		// Cache trouble must not block the crawl; fetch unconditionally
		f.logger.Warn().Err(err).Str("url", rawURL).Msg("Host cache read failed")
		cached = nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("fetcher: create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.appendLog(ctx, rawURL, 0, nil, err)
		return nil, fmt.Errorf("fetcher: get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		f.appendLog(ctx, rawURL, resp.StatusCode, resp, nil)
		return &Result{StatusCode: resp.StatusCode, NotModified: true}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("fetcher: get %s: unexpected status %d", rawURL, resp.StatusCode)
		f.appendLog(ctx, rawURL, resp.StatusCode, resp, statusErr)
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		f.appendLog(ctx, rawURL, resp.StatusCode, resp, err)
		return nil, fmt.Errorf("fetcher: read body of %s: %w", rawURL, err)
	}

	f.updateHostCache(ctx, rawURL, resp)
	f.appendLogWithSize(ctx, rawURL, resp.StatusCode, resp, len(body), nil)

	return &Result{StatusCode: resp.StatusCode, Body: body}, nil
}

// updateHostCache stores validators from a successful response. Responses
// without ETag or Last-Modified clear the entry so stale validators are
// never replayed.
func (f *Fetcher) updateHostCache(ctx context.Context, rawURL string, resp *http.Response) {
	entry := &models.HostCacheEntry{
		URL:          rawURL,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	if err := f.storage.PutHostCache(ctx, entry); err != nil {
		f.logger.Warn().Err(err).Str("url", rawURL).Msg("Host cache write failed")
	}
}

func (f *Fetcher) appendLog(ctx context.Context, rawURL string, statusCode int, resp *http.Response, fetchErr error) {
	f.appendLogWithSize(ctx, rawURL, statusCode, resp, 0, fetchErr)
}

// appendLogWithSize writes the audit row. Best effort: a logging failure
// never fails the fetch.
func (f *Fetcher) appendLogWithSize(ctx context.Context, rawURL string, statusCode int, resp *http.Response, byteSize int, fetchErr error) {
	row := &models.FetchLog{
		URL:        rawURL,
		Domain:     common.DomainOf(rawURL),
		StatusCode: statusCode,
		ByteSize:   byteSize,
	}
	if resp != nil {
		row.ETag = resp.Header.Get("ETag")
		row.LastModified = resp.Header.Get("Last-Modified")
	}
	if fetchErr != nil {
		row.Error = fetchErr.Error()
	}
	if err := f.storage.AppendFetchLog(ctx, row); err != nil {
		f.logger.Warn().Err(err).Str("url", rawURL).Msg("Fetch log write failed")
	}
}
