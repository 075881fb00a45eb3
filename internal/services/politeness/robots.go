// Package politeness enforces crawler etiquette: per-domain pacing,
// concurrency caps and robots.txt compliance.
package politeness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"
)

const (
	defaultRobotsCacheTTL = 1 * time.Hour
	robotsTxtPath         = "/robots.txt"
	maxRobotsBodyBytes    = 512 * 1024 // 512 KB
)

// RobotsChecker checks and caches robots.txt rules per host. Missing,
// errored or non-2xx robots.txt means allow-all (fail open).
type RobotsChecker struct {
	httpClient *http.Client
	userAgent  string
	cache      map[string]*robotsCacheEntry // keyed by host
	mu         sync.RWMutex
	cacheTTL   time.Duration
	logger     arbor.ILogger
}

type robotsCacheEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
	allowAll  bool
}

// NewRobotsChecker creates a new RobotsChecker
func NewRobotsChecker(httpClient *http.Client, userAgent string, cacheTTL time.Duration, logger arbor.ILogger) *RobotsChecker {
	if cacheTTL <= 0 {
		cacheTTL = defaultRobotsCacheTTL
	}
	return &RobotsChecker{
		httpClient: httpClient,
		userAgent:  userAgent,
		cache:      make(map[string]*robotsCacheEntry),
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// IsAllowed checks whether the URL's path is allowed for this bot,
// fetching and caching robots.txt for the host as needed.
func (r *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("robots: parse url: %w", err)
	}

	host := strings.ToLower(parsed.Host)
	if host == "" {
		return false, fmt.Errorf("robots: empty host in url %q", rawURL)
	}

	entry := r.getOrFetchEntry(ctx, host, parsed.Scheme)
	if entry.allowAll {
		return true, nil
	}

	return entry.data.TestAgent(parsed.Path, r.userAgent), nil
}

// CrawlDelay returns the robots.txt crawl-delay for the host, or 0 when
// no delay is specified or robots.txt is not cached.
func (r *RobotsChecker) CrawlDelay(host string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[strings.ToLower(host)]
	if !ok || entry.allowAll || entry.data == nil {
		return 0
	}

	group := entry.data.FindGroup(r.userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

func (r *RobotsChecker) getOrFetchEntry(ctx context.Context, host, scheme string) *robotsCacheEntry {
	if entry, ok := r.getCachedEntry(host); ok {
		return entry
	}
	return r.fetchAndCache(ctx, host, scheme)
}

func (r *RobotsChecker) getCachedEntry(host string) (*robotsCacheEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[host]
	if !ok {
		return nil, false
	}
	if time.Since(entry.fetchedAt) > r.cacheTTL {
		return nil, false
	}
	return entry, true
}

func (r *RobotsChecker) fetchAndCache(ctx context.Context, host, scheme string) *robotsCacheEntry {
	if scheme == "" {
		scheme = "https"
	}

	robotsURL := scheme + "://" + host + robotsTxtPath

	body, statusCode, err := r.doFetch(ctx, robotsURL)
	if err != nil {
		// Network failure: allow by default
		r.logger.Debug().Err(err).Str("host", host).Msg("robots.txt fetch failed, allowing all")
		return r.cacheEntry(host, &robotsCacheEntry{fetchedAt: time.Now(), allowAll: true})
	}

	return r.cacheEntry(host, r.buildEntry(body, statusCode))
}

func (r *RobotsChecker) doFetch(ctx context.Context, robotsURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("robots: create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("robots: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("robots: read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// buildEntry parses a robots.txt response. Only 2xx responses are parsed;
// everything else is allow-all.
func (r *RobotsChecker) buildEntry(body []byte, statusCode int) *robotsCacheEntry {
	if statusCode < 200 || statusCode >= 300 {
		return &robotsCacheEntry{fetchedAt: time.Now(), allowAll: true}
	}

	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		return &robotsCacheEntry{fetchedAt: time.Now(), allowAll: true}
	}
	return &robotsCacheEntry{data: robots, fetchedAt: time.Now()}
}

func (r *RobotsChecker) cacheEntry(host string, entry *robotsCacheEntry) *robotsCacheEntry {
	r.mu.Lock()
	r.cache[host] = entry
	r.mu.Unlock()
	return entry
}
