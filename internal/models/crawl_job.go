package models

import (
	"time"
)

// JobStatus represents the state of a crawl job
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusFetching JobStatus = "fetching"
	JobStatusDone     JobStatus = "done"
	JobStatusSkipped  JobStatus = "skipped" // robots.txt disallow: terminal, but not an error
	JobStatusError    JobStatus = "error"   // terminal after the attempt cap
)

// JobKind distinguishes listing-index pages from individual listing pages
type JobKind string

const (
	JobKindDiscover JobKind = "discover" // index/search page: yields links to detail pages
	JobKindDetail   JobKind = "detail"   // single listing page: yields one canonical listing
)

// CrawlJob is one row per URL to fetch.
//
// Lifecycle: created queued on discovery, fetching while claimed by a
// scheduler tick (LockedAt stamped), then done, skipped or error. Failed
// attempts revert to queued with ScheduledAt pushed into the future until
// Tries exceeds the attempt cap.
//
// NormalizedURL is the unique enqueue key: inserting a job whose normalized
// URL already exists is a reported no-op, never an error.
type CrawlJob struct {
	ID            string     `json:"id" badgerhold:"key"`
	URL           string     `json:"url"`
	NormalizedURL string     `json:"normalized_url" badgerhold:"unique"`
	Domain        string     `json:"domain" badgerhold:"index"`
	Kind          JobKind    `json:"kind"`
	Status        JobStatus  `json:"status" badgerhold:"index"`
	Priority      int        `json:"priority"`
	ScheduledAt   time.Time  `json:"scheduled_at"` // backoff delay and FIFO ordering
	Tries         int        `json:"tries"`
	LastError     string     `json:"last_error,omitempty"`
	ContentHash   string     `json:"content_hash,omitempty"`
	ListingID     string     `json:"listing_id,omitempty"` // canonical listing produced by this job
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Terminal reports whether the job will never be fetched again
func (j *CrawlJob) Terminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusSkipped || j.Status == JobStatusError
}
