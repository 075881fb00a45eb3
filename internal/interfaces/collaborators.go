package interfaces

import (
	"context"

	"github.com/casaval/casaval/internal/models"
)

// Extractor turns raw HTML into structured listing fields. The pipeline
// treats extraction as opaque: malformed or missing fields come back nil,
// and only an unparseable page returns an error.
type Extractor interface {
	Extract(pageURL string, body []byte) (*models.ExtractedFields, error)
}

// ListingScorer is the downstream valuation collaborator, invoked once per
// newly created canonical listing. Fire-and-forget from the pipeline's
// perspective: errors are logged, never propagated.
type ListingScorer interface {
	ScoreListing(ctx context.Context, listingID, sourceURL string) error
}
