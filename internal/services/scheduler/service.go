// Package scheduler drives the crawl pipeline: it claims batches of due
// jobs, runs each through the politeness gate, fetcher, extractor and
// ingestion writer, and applies the retry policy on failure.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/casaval/casaval/internal/common"
	"github.com/casaval/casaval/internal/interfaces"
	"github.com/casaval/casaval/internal/models"
	"github.com/casaval/casaval/internal/services/fetcher"
	"github.com/casaval/casaval/internal/services/ingest"
	"github.com/casaval/casaval/internal/services/politeness"
	"github.com/casaval/casaval/internal/services/workers"
)

// disabledSourceDelay is how far out jobs for an operator-disabled source
// are pushed before being reconsidered.
const disabledSourceDelay = 1 * time.Hour

// Service runs the crawl loop on a cron schedule and recovers stale locks
type Service struct {
	config    *common.CrawlerConfig
	storage   interfaces.StorageManager
	gate      *politeness.Gate
	fetcher   *fetcher.Fetcher
	extractor interfaces.Extractor
	writer    *ingest.Writer
	cron      *cron.Cron
	logger    arbor.ILogger

	mu        sync.Mutex
	running   bool
	staleStop chan struct{}
}

// NewService creates the scheduler service
func NewService(
	config *common.CrawlerConfig,
	storage interfaces.StorageManager,
	gate *politeness.Gate,
	f *fetcher.Fetcher,
	extractor interfaces.Extractor,
	writer *ingest.Writer,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:    config,
		storage:   storage,
		gate:      gate,
		fetcher:   f,
		extractor: extractor,
		writer:    writer,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start begins periodic batch processing and stale-lock recovery
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	schedule := s.config.Schedule
	if schedule == "" {
		schedule = "@every 1m"
	}

	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunBatch(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled batch failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron schedule: %w", err)
	}

	s.cron.Start()
	s.staleStop = make(chan struct{})
	go s.staleLockLoop(s.staleStop)
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Int("batch_size", s.config.BatchSize).
		Msg("Crawl scheduler started")
	return nil
}

// Stop halts the cron schedule and the stale-lock loop. In-flight batch
// work finishes on its own.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cron.Stop()
	close(s.staleStop)
	s.running = false
	s.logger.Info().Msg("Crawl scheduler stopped")
}

// EnqueueURL adds a crawl job. Returns the job and whether it was newly
// inserted; an already-queued normalized URL is reported as skipped, not
// an error.
func (s *Service) EnqueueURL(ctx context.Context, rawURL string, kind models.JobKind, priority int) (*models.CrawlJob, bool, error) {
	job := &models.CrawlJob{
		URL:      rawURL,
		Kind:     kind,
		Priority: priority,
	}
	inserted, err := s.storage.Jobs().Enqueue(ctx, job)
	if err != nil {
		return nil, false, err
	}
	return job, inserted, nil
}

// RunBatch claims one batch of due jobs and processes them on the worker
// pool. Safe to call concurrently: claiming is atomic, so overlapping
// invocations never share a job.
func (s *Service) RunBatch(ctx context.Context) error {
	batch, err := s.storage.Jobs().ClaimBatch(ctx, s.config.BatchSize, time.Now())
	if err != nil {
		return fmt.Errorf("scheduler: claim batch: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	s.logger.Info().Int("count", len(batch)).Msg("Processing crawl batch")

	pool := workers.NewPool(ctx, len(batch), s.logger)
	pool.Start()
	for _, job := range batch {
		claimed := job
		if err := pool.Submit(func(taskCtx context.Context) error {
			return s.processJob(taskCtx, claimed)
		}); err != nil {
			// Pool is shutting down; hand the claim back
			if requeueErr := s.storage.Jobs().Requeue(ctx, claimed.ID, time.Now()); requeueErr != nil {
				s.logger.Error().Err(requeueErr).Str("job_id", claimed.ID).Msg("Failed to requeue unsubmitted job")
			}
		}
	}
	pool.Wait()

	if errs := pool.Errors(); len(errs) > 0 {
		return fmt.Errorf("scheduler: %d of %d jobs failed, first: %w", len(errs), len(batch), errs[0])
	}
	return nil
}

// processJob runs one claimed job through the full pipeline and always
// leaves it in a persisted state: done, skipped, queued or error.
func (s *Service) processJob(ctx context.Context, job *models.CrawlJob) error {
	jobs := s.storage.Jobs()

	if err := s.gate.TryAcquire(ctx, job.URL); err != nil {
		switch {
		case errors.Is(err, politeness.ErrRobotsDisallowed):
			// Terminal but not an error: the source said no
			return jobs.MarkSkipped(ctx, job.ID, err.Error())
		case errors.Is(err, politeness.ErrSourceDisabled):
			return jobs.Requeue(ctx, job.ID, time.Now().Add(disabledSourceDelay))
		case errors.Is(err, politeness.ErrDomainBusy):
			// Not a failure: try again shortly without touching Tries
			return jobs.Requeue(ctx, job.ID, time.Now().Add(s.config.RequeueDelay))
		default:
			return jobs.MarkFailed(ctx, job.ID, err.Error(), s.config.MaxAttempts, s.config.RetryBackoff)
		}
	}
	defer s.gate.Release(job.Domain)

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	result, err := s.fetcher.Fetch(fetchCtx, job.URL)
	if err != nil {
		return jobs.MarkFailed(ctx, job.ID, err.Error(), s.config.MaxAttempts, s.config.RetryBackoff)
	}

	if result.NotModified {
		// Content unchanged since the last crawl: done, nothing to re-ingest
		s.logger.Debug().Str("url", job.URL).Msg("Not modified, skipping ingestion")
		return jobs.MarkDone(ctx, job.ID, job.ContentHash, job.ListingID)
	}

	fields, err := s.extractor.Extract(job.URL, result.Body)
	if err != nil {
		// Retrying will not fix a parsing problem
		return jobs.MarkFailedTerminal(ctx, job.ID, err.Error())
	}

	if job.Kind == models.JobKindDiscover {
		s.enqueueDiscovered(ctx, job, fields.Links)
		return jobs.MarkDone(ctx, job.ID, "", "")
	}

	listingID, outcome, err := s.writer.Upsert(ctx, job.URL, fields)
	if err != nil {
		return jobs.MarkFailed(ctx, job.ID, err.Error(), s.config.MaxAttempts, s.config.RetryBackoff)
	}

	s.logger.Info().
		Str("url", job.URL).
		Str("listing_id", listingID).
		Str("outcome", string(outcome)).
		Msg("Crawl job completed")

	return jobs.MarkDone(ctx, job.ID, ingest.HashFields(fields), listingID)
}

// enqueueDiscovered queues detail jobs for links found on a discover page.
// Duplicate URLs are silently skipped by the queue's unique index.
func (s *Service) enqueueDiscovered(ctx context.Context, parent *models.CrawlJob, links []string) {
	inserted := 0
	for _, link := range links {
		job := &models.CrawlJob{
			URL:      link,
			Kind:     models.JobKindDetail,
			Priority: parent.Priority - 1,
		}
		ok, err := s.storage.Jobs().Enqueue(ctx, job)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", link).Msg("Failed to enqueue discovered link")
			continue
		}
		if ok {
			inserted++
		}
	}
	s.logger.Info().
		Str("parent", parent.URL).
		Int("found", len(links)).
		Int("enqueued", inserted).
		Msg("Discovered listing links")
}

// staleLockLoop periodically requeues fetching jobs whose lock outlived
// the TTL, recovering from crashed or hung invocations.
func (s *Service) staleLockLoop(stop <-chan struct{}) {
	interval := s.config.LockTTL / 2
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.storage.Jobs().ResetStale(context.Background(), s.config.LockTTL); err != nil {
				s.logger.Error().Err(err).Msg("Stale lock recovery failed")
			}
		case <-stop:
			return
		}
	}
}
