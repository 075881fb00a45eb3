package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/casaval/casaval/internal/common"
	"github.com/casaval/casaval/internal/interfaces"
	"github.com/casaval/casaval/internal/models"
)

// ErrJobNotFound is returned when a job ID does not exist
var ErrJobNotFound = errors.New("crawl job not found")

// JobStorage implements the JobStorage interface for Badger.
//
// Claiming is serialized with a process-wide mutex on top of the embedded
// store: the store lives in this process, so the mutex makes the
// select-and-mark transition atomic across concurrent scheduler
// invocations. A multi-process deployment would move this into a shared
// transactional store.
type JobStorage struct {
	db      *BadgerDB
	logger  arbor.ILogger
	claimMu sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) Enqueue(ctx context.Context, job *models.CrawlJob) (bool, error) {
	if job.URL == "" {
		return false, fmt.Errorf("job URL is required")
	}

	if job.NormalizedURL == "" {
		normalized, err := common.NormalizeURL(job.URL)
		if err != nil {
			return false, fmt.Errorf("failed to normalize url: %w", err)
		}
		job.NormalizedURL = normalized
	}
	if job.Domain == "" {
		job.Domain = common.DomainOf(job.NormalizedURL)
	}
	if job.ID == "" {
		job.ID = common.NewJobID()
	}
	now := time.Now()
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = now
	}
	job.Status = models.JobStatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now

	// The unique index on NormalizedURL makes duplicate enqueue a no-op
	if err := s.db.Store().Insert(job.ID, job); err != nil {
		if errors.Is(err, badgerhold.ErrUniqueExists) {
			s.logger.Debug().Str("url", job.NormalizedURL).Msg("Enqueue skipped, URL already queued")
			return false, nil
		}
		return false, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return true, nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.CrawlJob, error) {
	var job models.CrawlJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) GetJobByNormalizedURL(ctx context.Context, normalizedURL string) (*models.CrawlJob, error) {
	var job models.CrawlJob
	err := s.db.Store().FindOne(&job, badgerhold.Where("NormalizedURL").Eq(normalizedURL))
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, normalizedURL)
		}
		return nil, fmt.Errorf("failed to find job by url: %w", err)
	}
	return &job, nil
}

// ClaimBatch selects due queued jobs ordered by (priority desc, scheduledAt
// asc), over-fetches 3x the requested size, keeps at most one job per
// domain, and marks the survivors fetching in the same critical section.
func (s *JobStorage) ClaimBatch(ctx context.Context, n int, now time.Time) ([]*models.CrawlJob, error) {
	if n <= 0 {
		return nil, nil
	}

	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var due []models.CrawlJob
	err := s.db.Store().Find(&due, badgerhold.Where("Status").Eq(models.JobStatusQueued).Index("Status"))
	if err != nil {
		return nil, fmt.Errorf("failed to select queued jobs: %w", err)
	}

	eligible := due[:0]
	for _, job := range due {
		if !job.ScheduledAt.After(now) {
			eligible = append(eligible, job)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].ScheduledAt.Before(eligible[j].ScheduledAt)
	})

	// Domain-diversity reduction over the 3x over-fetch window: no single
	// domain starves the batch even when it dominates the queue.
	overFetch := 3 * n
	if overFetch > len(eligible) {
		overFetch = len(eligible)
	}

	seenDomains := make(map[string]bool, n)
	claimed := make([]*models.CrawlJob, 0, n)
	for i := 0; i < overFetch && len(claimed) < n; i++ {
		job := eligible[i]
		if seenDomains[job.Domain] {
			continue
		}
		seenDomains[job.Domain] = true

		lockedAt := now
		job.Status = models.JobStatusFetching
		job.LockedAt = &lockedAt
		job.UpdatedAt = now
		if err := s.db.Store().Update(job.ID, &job); err != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
		}

		claimedJob := job
		claimed = append(claimed, &claimedJob)
	}

	return claimed, nil
}

func (s *JobStorage) Requeue(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(job *models.CrawlJob) {
		job.Status = models.JobStatusQueued
		job.ScheduledAt = at
		job.LockedAt = nil
	})
}

func (s *JobStorage) MarkDone(ctx context.Context, id, contentHash, listingID string) error {
	return s.update(id, func(job *models.CrawlJob) {
		job.Status = models.JobStatusDone
		job.LastError = ""
		job.LockedAt = nil
		if contentHash != "" {
			job.ContentHash = contentHash
		}
		if listingID != "" {
			job.ListingID = listingID
		}
	})
}

func (s *JobStorage) MarkSkipped(ctx context.Context, id, reason string) error {
	return s.update(id, func(job *models.CrawlJob) {
		job.Status = models.JobStatusSkipped
		job.LastError = reason
		job.LockedAt = nil
	})
}

func (s *JobStorage) MarkFailed(ctx context.Context, id, errMsg string, maxAttempts int, backoff time.Duration) error {
	return s.update(id, func(job *models.CrawlJob) {
		job.Tries++
		job.LastError = errMsg
		job.LockedAt = nil
		if job.Tries >= maxAttempts {
			job.Status = models.JobStatusError
			return
		}
		// Linear backoff scaled by attempt count
		job.Status = models.JobStatusQueued
		job.ScheduledAt = time.Now().Add(time.Duration(job.Tries) * backoff)
	})
}

func (s *JobStorage) MarkFailedTerminal(ctx context.Context, id, errMsg string) error {
	return s.update(id, func(job *models.CrawlJob) {
		job.Tries++
		job.Status = models.JobStatusError
		job.LastError = errMsg
		job.LockedAt = nil
	})
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.CrawlJob, error) {
	query := badgerhold.Where("ID").Ne("")
	if opts != nil {
		if opts.Status != "" {
			query = badgerhold.Where("Status").Eq(opts.Status).Index("Status")
		}
		if opts.Domain != "" {
			query = query.And("Domain").Eq(opts.Domain)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()
	if opts != nil && opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var jobs []models.CrawlJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.CrawlJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// ListTerminalErrors returns jobs that exhausted their attempts, newest
// first, for the operator error list.
func (s *JobStorage) ListTerminalErrors(ctx context.Context, limit int) ([]*models.CrawlJob, error) {
	opts := &interfaces.JobListOptions{Status: models.JobStatusError, Limit: limit}
	return s.ListJobs(ctx, opts)
}

func (s *JobStorage) ResetStale(ctx context.Context, lockTTL time.Duration) (int, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var fetching []models.CrawlJob
	err := s.db.Store().Find(&fetching, badgerhold.Where("Status").Eq(models.JobStatusFetching).Index("Status"))
	if err != nil {
		return 0, fmt.Errorf("failed to select fetching jobs: %w", err)
	}

	cutoff := time.Now().Add(-lockTTL)
	recovered := 0
	for _, job := range fetching {
		if job.LockedAt == nil || job.LockedAt.After(cutoff) {
			continue
		}
		job.Status = models.JobStatusQueued
		job.LockedAt = nil
		job.ScheduledAt = time.Now()
		job.UpdatedAt = time.Now()
		if err := s.db.Store().Update(job.ID, &job); err != nil {
			return recovered, fmt.Errorf("failed to requeue stale job %s: %w", job.ID, err)
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.Warn().Int("count", recovered).Msg("Requeued jobs with stale locks")
	}
	return recovered, nil
}

func (s *JobStorage) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	statuses := []models.JobStatus{
		models.JobStatusQueued,
		models.JobStatusFetching,
		models.JobStatusDone,
		models.JobStatusSkipped,
		models.JobStatusError,
	}

	counts := make(map[models.JobStatus]int, len(statuses))
	for _, status := range statuses {
		n, err := s.db.Store().Count(&models.CrawlJob{}, badgerhold.Where("Status").Eq(status).Index("Status"))
		if err != nil {
			return nil, fmt.Errorf("failed to count jobs with status %s: %w", status, err)
		}
		counts[status] = int(n)
	}
	return counts, nil
}

// update applies fn to a job and persists it with a fresh UpdatedAt
func (s *JobStorage) update(id string, fn func(job *models.CrawlJob)) error {
	var job models.CrawlJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	fn(&job)
	job.UpdatedAt = time.Now()

	if err := s.db.Store().Update(id, &job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}
