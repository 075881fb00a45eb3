package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/casaval/casaval/internal/interfaces"
	"github.com/casaval/casaval/internal/models"
	badgerstore "github.com/casaval/casaval/internal/storage/badger"
)

// recordingScorer captures ScoreListing invocations
type recordingScorer struct {
	mu    sync.Mutex
	calls []string
	fired chan struct{}
}

func newRecordingScorer() *recordingScorer {
	return &recordingScorer{fired: make(chan struct{}, 8)}
}

func (r *recordingScorer) ScoreListing(ctx context.Context, listingID, sourceURL string) error {
	r.mu.Lock()
	r.calls = append(r.calls, listingID)
	r.mu.Unlock()
	r.fired <- struct{}{}
	return nil
}

func (r *recordingScorer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestWriter(t *testing.T) (*Writer, interfaces.ListingStorage, *recordingScorer) {
	t.Helper()
	logger := arbor.NewLogger()
	manager, err := badgerstore.NewManagerInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	scorer := newRecordingScorer()
	return NewWriter(manager.Listings(), scorer, logger), manager.Listings(), scorer
}

func sampleFields() *models.ExtractedFields {
	return &models.ExtractedFields{
		Title:  "Apartament 2 camere Titan",
		Price:  floatPtr(100000),
		AreaM2: floatPtr(50),
		Rooms:  floatPtr(2),
		City:   "Bucuresti",
		Lat:    floatPtr(44.43),
		Lng:    floatPtr(26.10),
	}
}

func TestWriter_CreatesListingAndTriggersScoring(t *testing.T) {
	writer, listings, scorer := newTestWriter(t)
	ctx := context.Background()

	id, outcome, err := writer.Upsert(ctx, "https://example.com/listing/42", sampleFields())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	require.NotEmpty(t, id)

	listing, err := listings.GetListing(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusActive, listing.Status)
	assert.Equal(t, "example.com", listing.Domain)
	assert.NotEmpty(t, listing.ContentHash)

	select {
	case <-scorer.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scorer was not invoked for a newly created listing")
	}
}

func TestWriter_UnchangedContentIsNoOp(t *testing.T) {
	writer, _, _ := newTestWriter(t)
	ctx := context.Background()

	id1, _, err := writer.Upsert(ctx, "https://example.com/listing/42", sampleFields())
	require.NoError(t, err)

	id2, outcome, err := writer.Upsert(ctx, "https://example.com/listing/42", sampleFields())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Equal(t, id1, id2)
}

func TestWriter_ChangedContentUpdatesInPlace(t *testing.T) {
	writer, listings, scorer := newTestWriter(t)
	ctx := context.Background()

	id1, _, err := writer.Upsert(ctx, "https://example.com/listing/42", sampleFields())
	require.NoError(t, err)
	<-scorer.fired

	changed := sampleFields()
	changed.Price = floatPtr(95000)
	id2, outcome, err := writer.Upsert(ctx, "https://example.com/listing/42", changed)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, id1, id2)

	listing, err := listings.GetListing(ctx, id1)
	require.NoError(t, err)
	require.NotNil(t, listing.Price)
	assert.Equal(t, 95000.0, *listing.Price)

	// Updates do not re-trigger scoring
	assert.Equal(t, 1, scorer.callCount())
}

func TestWriter_CrossSourceDuplicateShortCircuits(t *testing.T) {
	writer, listings, scorer := newTestWriter(t)
	ctx := context.Background()

	id1, _, err := writer.Upsert(ctx, "https://first.example.com/listing/42", sampleFields())
	require.NoError(t, err)
	<-scorer.fired

	id2, outcome, err := writer.Upsert(ctx, "https://second.example.net/anunt/99", sampleFields())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicateContent, outcome)
	assert.Equal(t, id1, id2, "identical content must resolve to the existing listing")

	// No twin listing was created under the second URL
	twin, err := listings.GetBySourceURL(ctx, "https://second.example.net/anunt/99")
	require.NoError(t, err)
	assert.Nil(t, twin)
	assert.Equal(t, 1, scorer.callCount())
}
