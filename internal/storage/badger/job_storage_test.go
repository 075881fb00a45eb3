package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/casaval/casaval/internal/interfaces"
	"github.com/casaval/casaval/internal/models"
)

func newTestJobs(t *testing.T) interfaces.JobStorage {
	t.Helper()
	manager, err := NewManagerInMemory(arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager.Jobs()
}

func enqueue(t *testing.T, jobs interfaces.JobStorage, url string, priority int) *models.CrawlJob {
	t.Helper()
	job := &models.CrawlJob{URL: url, Kind: models.JobKindDetail, Priority: priority}
	inserted, err := jobs.Enqueue(context.Background(), job)
	require.NoError(t, err)
	require.True(t, inserted)
	return job
}

func TestEnqueue_IdempotentOnNormalizedURL(t *testing.T) {
	jobs := newTestJobs(t)
	ctx := context.Background()

	first := &models.CrawlJob{URL: "https://Example.com/listing/42?b=2&a=1"}
	inserted, err := jobs.Enqueue(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same URL in a different spelling: skipped, not failed
	second := &models.CrawlJob{URL: "https://example.com/listing/42/?a=1&b=2"}
	inserted, err = jobs.Enqueue(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)

	all, err := jobs.ListJobs(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestClaimBatch_AtomicUnderConcurrency(t *testing.T) {
	jobs := newTestJobs(t)
	ctx := context.Background()

	const available = 5
	for i := 0; i < available; i++ {
		enqueue(t, jobs, fmt.Sprintf("https://site-%d.example.com/listing", i), 0)
	}

	const claimers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := make(map[string]int)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch, err := jobs.ClaimBatch(ctx, available, time.Now())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			for _, job := range batch {
				claimed[job.ID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	total := 0
	for id, count := range claimed {
		assert.Equal(t, 1, count, "job %s claimed more than once", id)
		total += count
	}
	assert.Equal(t, available, total, "every available job claimed exactly once")
}

func TestClaimBatch_DomainDiversity(t *testing.T) {
	jobs := newTestJobs(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		enqueue(t, jobs, fmt.Sprintf("https://a.example.com/listing/%d", i), 0)
	}
	enqueue(t, jobs, "https://b.example.com/listing/1", 0)

	batch, err := jobs.ClaimBatch(ctx, 2, time.Now())
	require.NoError(t, err)
	require.Len(t, batch, 2)

	domains := map[string]bool{}
	for _, job := range batch {
		domains[job.Domain] = true
	}
	assert.True(t, domains["b.example.com"], "the minority domain must not be starved")
	assert.Len(t, domains, 2, "at most one job per domain")
}

func TestClaimBatch_OrdersByPriorityThenSchedule(t *testing.T) {
	jobs := newTestJobs(t)
	ctx := context.Background()

	enqueue(t, jobs, "https://low.example.com/listing", 1)
	enqueue(t, jobs, "https://high.example.com/listing", 10)

	batch, err := jobs.ClaimBatch(ctx, 1, time.Now())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "high.example.com", batch[0].Domain)
}

func TestClaimBatch_SkipsFutureScheduledJobs(t *testing.T) {
	jobs := newTestJobs(t)
	ctx := context.Background()

	job := &models.CrawlJob{
		URL:         "https://example.com/listing/1",
		ScheduledAt: time.Now().Add(1 * time.Hour),
	}
	_, err := jobs.Enqueue(ctx, job)
	require.NoError(t, err)

	batch, err := jobs.ClaimBatch(ctx, 5, time.Now())
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestMarkFailed_LinearBackoffThenTerminal(t *testing.T) {
	jobs := newTestJobs(t)
	ctx := context.Background()
	job := enqueue(t, jobs, "https://example.com/listing/1", 0)

	const maxAttempts = 3
	backoff := 5 * time.Minute

	var lastScheduled time.Time
	for attempt := 1; attempt < maxAttempts; attempt++ {
		require.NoError(t, jobs.MarkFailed(ctx, job.ID, "connection refused", maxAttempts, backoff))

		current, err := jobs.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusQueued, current.Status)
		assert.Equal(t, attempt, current.Tries)
		assert.True(t, current.ScheduledAt.After(lastScheduled), "backoff must push ScheduledAt forward")
		assert.InDelta(t, float64(time.Duration(attempt)*backoff), float64(time.Until(current.ScheduledAt)), float64(5*time.Second))
		lastScheduled = current.ScheduledAt
	}

	// Third failure is terminal, exactly at the cap
	require.NoError(t, jobs.MarkFailed(ctx, job.ID, "connection refused", maxAttempts, backoff))
	current, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, current.Status)
	assert.Equal(t, maxAttempts, current.Tries)
	assert.Equal(t, "connection refused", current.LastError)

	errors, err := jobs.ListTerminalErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, errors, 1)
	assert.Equal(t, job.ID, errors[0].ID)
}

func TestRequeue_DoesNotTouchTries(t *testing.T) {
	jobs := newTestJobs(t)
	ctx := context.Background()
	job := enqueue(t, jobs, "https://example.com/listing/1", 0)

	batch, err := jobs.ClaimBatch(ctx, 1, time.Now())
	require.NoError(t, err)
	require.Len(t, batch, 1)

	later := time.Now().Add(30 * time.Second)
	require.NoError(t, jobs.Requeue(ctx, job.ID, later))

	current, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, current.Status)
	assert.Equal(t, 0, current.Tries, "politeness denial is not a failure")
	assert.Nil(t, current.LockedAt)
}

func TestMarkSkipped_TerminalButNotError(t *testing.T) {
	jobs := newTestJobs(t)
	ctx := context.Background()
	job := enqueue(t, jobs, "https://example.com/private/listing", 0)

	require.NoError(t, jobs.MarkSkipped(ctx, job.ID, "robots.txt disallows url"))

	current, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSkipped, current.Status)
	assert.True(t, current.Terminal())

	errors, err := jobs.ListTerminalErrors(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, errors, "skipped jobs are not operator-facing errors")
}

func TestResetStale_RecoversAbandonedClaims(t *testing.T) {
	jobs := newTestJobs(t)
	ctx := context.Background()
	job := &models.CrawlJob{
		URL:         "https://example.com/listing/1",
		ScheduledAt: time.Now().Add(-30 * time.Minute),
	}
	inserted, err := jobs.Enqueue(ctx, job)
	require.NoError(t, err)
	require.True(t, inserted)

	// Claim as of 20 minutes ago so the lock is already stale
	batch, err := jobs.ClaimBatch(ctx, 1, time.Now().Add(-20*time.Minute))
	require.NoError(t, err)
	require.Len(t, batch, 1)

	recovered, err := jobs.ResetStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	current, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, current.Status)
	assert.Nil(t, current.LockedAt)
}

func TestCountByStatus(t *testing.T) {
	jobs := newTestJobs(t)
	ctx := context.Background()

	enqueue(t, jobs, "https://a.example.com/1", 0)
	enqueue(t, jobs, "https://b.example.com/1", 0)
	done := enqueue(t, jobs, "https://c.example.com/1", 0)
	require.NoError(t, jobs.MarkDone(ctx, done.ID, "hash", "lst_1"))

	counts, err := jobs.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.JobStatusQueued])
	assert.Equal(t, 1, counts[models.JobStatusDone])
	assert.Equal(t, 0, counts[models.JobStatusError])
}
