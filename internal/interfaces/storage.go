package interfaces

import (
	"context"
	"time"

	"github.com/casaval/casaval/internal/models"
)

// JobListOptions filters job listings for the operator surface
type JobListOptions struct {
	Status models.JobStatus
	Domain string
	Limit  int
}

// JobStorage owns the crawl job queue. The job table is the single source
// of truth for job ownership: claiming happens through an atomic
// queued -> fetching transition, never via in-memory state alone.
type JobStorage interface {
	// Enqueue inserts a job unless its normalized URL already exists.
	// Returns false (and no error) when the job was skipped as a duplicate.
	Enqueue(ctx context.Context, job *models.CrawlJob) (bool, error)

	GetJob(ctx context.Context, id string) (*models.CrawlJob, error)
	GetJobByNormalizedURL(ctx context.Context, normalizedURL string) (*models.CrawlJob, error)

	// ClaimBatch atomically claims up to n due queued jobs, at most one per
	// domain, ordered by (priority desc, scheduledAt asc).
	ClaimBatch(ctx context.Context, n int, now time.Time) ([]*models.CrawlJob, error)

	// Requeue returns a claimed job to the queue without touching Tries
	// (politeness denial is not a failure).
	Requeue(ctx context.Context, id string, at time.Time) error

	MarkDone(ctx context.Context, id, contentHash, listingID string) error
	MarkSkipped(ctx context.Context, id, reason string) error

	// MarkFailed increments Tries and either requeues with backoff or, at
	// the attempt cap, marks the job terminally errored.
	MarkFailed(ctx context.Context, id, errMsg string, maxAttempts int, backoff time.Duration) error

	// MarkFailedTerminal errors the job immediately, bypassing retries
	// (extraction failures: retrying will not fix a parsing problem).
	MarkFailedTerminal(ctx context.Context, id, errMsg string) error

	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.CrawlJob, error)
	ListTerminalErrors(ctx context.Context, limit int) ([]*models.CrawlJob, error)

	// ResetStale requeues fetching jobs whose lock is older than lockTTL
	// (scheduler crash recovery). Returns the number of jobs recovered.
	ResetStale(ctx context.Context, lockTTL time.Duration) (int, error)

	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// CandidateFilter bounds the dedup candidate pool. Fine-grained filtering
// (area ratio, room distance, geo cap) happens in the resolver.
type CandidateFilter struct {
	Since     time.Time // only listings created after this instant
	City      string    // case-insensitive city match; empty matches all
	ExcludeID string    // the subject itself
}

// ListingStorage owns canonical listings, dedup groups and comp matches
type ListingStorage interface {
	SaveListing(ctx context.Context, listing *models.Listing) error
	GetListing(ctx context.Context, id string) (*models.Listing, error)

	// GetBySourceURL returns the most recent listing for a source URL,
	// or nil when none exists.
	GetBySourceURL(ctx context.Context, sourceURL string) (*models.Listing, error)

	// FindActiveByContentHash returns an active listing carrying the given
	// content hash under any source URL, or nil. This is the cross-source
	// duplicate-submission guard.
	FindActiveByContentHash(ctx context.Context, hash string) (*models.Listing, error)

	FindCandidates(ctx context.Context, filter CandidateFilter) ([]*models.Listing, error)
	ListByGroup(ctx context.Context, groupID string) ([]*models.Listing, error)

	SaveGroup(ctx context.Context, group *models.DedupGroup) error
	GetGroup(ctx context.Context, id string) (*models.DedupGroup, error)

	// ReplaceMatches swaps the subject's comp-match snapshot in a single
	// transaction: delete all existing rows for the subject, insert the new
	// ranked set.
	ReplaceMatches(ctx context.Context, subjectID string, matches []*models.CompMatch) error
	ListMatches(ctx context.Context, subjectID string) ([]*models.CompMatch, error)
}

// FetchStorage owns conditional-fetch metadata, the fetch audit log and
// per-domain source configuration
type FetchStorage interface {
	// GetHostCache returns cached ETag/Last-Modified metadata for a URL,
	// or nil when the URL has never been fetched successfully.
	GetHostCache(ctx context.Context, url string) (*models.HostCacheEntry, error)
	PutHostCache(ctx context.Context, entry *models.HostCacheEntry) error

	AppendFetchLog(ctx context.Context, log *models.FetchLog) error
	ListFetchLogs(ctx context.Context, url string, limit int) ([]*models.FetchLog, error)

	// GetSource returns per-domain politeness configuration, or nil when
	// the domain has no operator-configured row.
	GetSource(ctx context.Context, domain string) (*models.ListingSource, error)
	UpsertSource(ctx context.Context, source *models.ListingSource) error
	ListSources(ctx context.Context) ([]*models.ListingSource, error)
}

// StorageManager aggregates the storage interfaces behind one lifecycle
type StorageManager interface {
	Jobs() JobStorage
	Listings() ListingStorage
	Fetch() FetchStorage
	Close() error
}
