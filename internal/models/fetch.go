package models

import (
	"time"
)

// HostCacheEntry holds per-URL conditional-fetch metadata. Read before
// every request to build If-None-Match / If-Modified-Since headers and
// updated after every successful non-304 response.
type HostCacheEntry struct {
	URL          string    `json:"url" badgerhold:"key"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FetchLog is an append-only audit row for one fetch attempt. Never
// updated, only inserted; read by the operator dashboard, not control flow.
type FetchLog struct {
	ID           string    `json:"id" badgerhold:"key"`
	URL          string    `json:"url" badgerhold:"index"`
	Domain       string    `json:"domain" badgerhold:"index"`
	StatusCode   int       `json:"status_code"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	ByteSize     int       `json:"byte_size"`
	Error        string    `json:"error,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// ListingSource is per-domain politeness configuration, mutable by
// operators and read-only to the crawler.
type ListingSource struct {
	Domain     string    `json:"domain" badgerhold:"key"`
	Enabled    bool      `json:"enabled"`
	MinDelayMs int       `json:"min_delay_ms"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MinDelay returns the configured delay as a duration
func (s *ListingSource) MinDelay() time.Duration {
	return time.Duration(s.MinDelayMs) * time.Millisecond
}
