package ingest

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/casaval/casaval/internal/common"
	"github.com/casaval/casaval/internal/interfaces"
	"github.com/casaval/casaval/internal/models"
)

// Outcome describes what Upsert did with a page
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeUpdated          Outcome = "updated"
	OutcomeUnchanged        Outcome = "unchanged"
	OutcomeDuplicateContent Outcome = "duplicate_content" // same substance, different source URL
)

// Writer is the idempotent ingestion sink. Re-ingesting the same page is
// always safe: identical content is a no-op, changed content updates in
// place, and content already active under another URL is absorbed into
// the existing listing instead of creating a twin.
type Writer struct {
	listings interfaces.ListingStorage
	scorer   interfaces.ListingScorer
	logger   arbor.ILogger
}

// NewWriter creates a Writer. scorer may be nil; newly created listings
// then skip comparable scoring.
func NewWriter(listings interfaces.ListingStorage, scorer interfaces.ListingScorer, logger arbor.ILogger) *Writer {
	return &Writer{
		listings: listings,
		scorer:   scorer,
		logger:   logger,
	}
}

// Upsert writes extracted fields for a source URL and returns the listing
// ID the content now lives under plus what happened to it.
func (w *Writer) Upsert(ctx context.Context, sourceURL string, fields *models.ExtractedFields) (string, Outcome, error) {
	if sourceURL == "" {
		return "", "", fmt.Errorf("ingest: source URL is required")
	}

	hash := HashFields(fields)

	existing, err := w.listings.GetBySourceURL(ctx, sourceURL)
	if err != nil {
		return "", "", fmt.Errorf("ingest: lookup by source url: %w", err)
	}

	if existing != nil {
		if existing.ContentHash == hash {
			return existing.ID, OutcomeUnchanged, nil
		}
		applyFields(existing, fields, hash)
		if err := w.listings.SaveListing(ctx, existing); err != nil {
			return "", "", fmt.Errorf("ingest: update listing: %w", err)
		}
		return existing.ID, OutcomeUpdated, nil
	}

	// Cross-source duplicate: the same substance already active under a
	// different URL. Point at the existing listing, never mint a twin.
	duplicate, err := w.listings.FindActiveByContentHash(ctx, hash)
	if err != nil {
		return "", "", fmt.Errorf("ingest: lookup by content hash: %w", err)
	}
	if duplicate != nil {
		w.logger.Info().
			Str("source_url", sourceURL).
			Str("listing_id", duplicate.ID).
			Msg("Content already active under another source URL")
		return duplicate.ID, OutcomeDuplicateContent, nil
	}

	listing := &models.Listing{
		ID:        common.NewListingID(),
		SourceURL: sourceURL,
		Domain:    common.DomainOf(sourceURL),
		Status:    models.ListingStatusActive,
	}
	applyFields(listing, fields, hash)
	if err := w.listings.SaveListing(ctx, listing); err != nil {
		return "", "", fmt.Errorf("ingest: create listing: %w", err)
	}

	w.scoreAsync(listing.ID, sourceURL)

	return listing.ID, OutcomeCreated, nil
}

// scoreAsync kicks off comparable scoring for a new listing without
// blocking ingestion. A scoring failure or panic is logged and dropped;
// the listing itself is already durable.
func (w *Writer) scoreAsync(listingID, sourceURL string) {
	if w.scorer == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error().
					Str("listing_id", listingID).
					Str("panic", fmt.Sprintf("%v", r)).
					Msg("Comparable scoring panicked")
			}
		}()
		if err := w.scorer.ScoreListing(context.Background(), listingID, sourceURL); err != nil {
			w.logger.Warn().Err(err).Str("listing_id", listingID).Msg("Comparable scoring failed")
		}
	}()
}

func applyFields(listing *models.Listing, fields *models.ExtractedFields, hash string) {
	listing.ContentHash = hash
	listing.Title = fields.Title
	listing.Price = fields.Price
	listing.Currency = fields.Currency
	listing.AreaM2 = fields.AreaM2
	listing.Rooms = fields.Rooms
	listing.Floor = fields.Floor
	listing.YearBuilt = fields.YearBuilt
	listing.Address = fields.Address
	listing.City = fields.City
	listing.AreaSlug = fields.AreaSlug
	listing.Lat = fields.Lat
	listing.Lng = fields.Lng
	listing.PhotoCount = len(fields.PhotoURLs)
}
