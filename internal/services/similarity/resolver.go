package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/casaval/casaval/internal/common"
	"github.com/casaval/casaval/internal/interfaces"
	"github.com/casaval/casaval/internal/models"
)

const (
	defaultCandidateWindowDays = 180
	defaultMaxComparables      = 12

	// areaRatioTolerance bounds the candidate pool to ±30% of the
	// subject's area.
	areaRatioTolerance = 0.30

	// roomCountTolerance bounds the candidate pool to room counts within
	// 1 of the subject.
	roomCountTolerance = 1.0

	// attachThreshold is the minimum best-comparable score at which a new
	// listing joins an existing group instead of founding its own.
	attachThreshold = 0.80
)

// ScoredCandidate pairs a candidate with its similarity to the subject
type ScoredCandidate struct {
	Listing        *models.Listing
	Score          float64
	DistanceMeters float64
}

// Resolver finds comparables for a listing and maintains its group
// membership. It implements interfaces.ListingScorer so the ingestion
// writer can trigger it on newly created listings.
type Resolver struct {
	listings            interfaces.ListingStorage
	candidateWindowDays int
	maxComparables      int
	logger              arbor.ILogger
}

// NewResolver creates a Resolver. windowDays and maxComparables fall back
// to defaults when non-positive.
func NewResolver(listings interfaces.ListingStorage, candidateWindowDays, maxComparables int, logger arbor.ILogger) *Resolver {
	if candidateWindowDays <= 0 {
		candidateWindowDays = defaultCandidateWindowDays
	}
	if maxComparables <= 0 {
		maxComparables = defaultMaxComparables
	}
	return &Resolver{
		listings:            listings,
		candidateWindowDays: candidateWindowDays,
		maxComparables:      maxComparables,
		logger:              logger,
	}
}

var _ interfaces.ListingScorer = (*Resolver)(nil)

// ScoreListing runs the full resolution pass for a listing: find
// comparables, snapshot them, update group membership.
func (r *Resolver) ScoreListing(ctx context.Context, listingID, sourceURL string) error {
	subject, err := r.listings.GetListing(ctx, listingID)
	if err != nil {
		return fmt.Errorf("resolver: load subject: %w", err)
	}
	return r.Resolve(ctx, subject)
}

// FindComparables returns the subject's ranked comparables, best first,
// capped at the configured maximum.
func (r *Resolver) FindComparables(ctx context.Context, subject *models.Listing) ([]*ScoredCandidate, error) {
	since := time.Now().AddDate(0, 0, -r.candidateWindowDays)
	pool, err := r.listings.FindCandidates(ctx, interfaces.CandidateFilter{
		Since:     since,
		City:      subject.City,
		ExcludeID: subject.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("resolver: candidate pool: %w", err)
	}

	scored := make([]*ScoredCandidate, 0, len(pool))
	for _, candidate := range pool {
		if !r.passesFineFilter(subject, candidate) {
			continue
		}
		scored = append(scored, &ScoredCandidate{
			Listing:        candidate,
			Score:          Score(subject, candidate),
			DistanceMeters: DistanceMeters(subject, candidate),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > r.maxComparables {
		scored = scored[:r.maxComparables]
	}
	return scored, nil
}

// passesFineFilter applies the bounds the coarse store query cannot:
// distance cap, area ratio and room distance. Each bound only applies when
// both sides know the value.
func (r *Resolver) passesFineFilter(subject, candidate *models.Listing) bool {
	if meters := DistanceMeters(subject, candidate); meters >= 0 && meters > DistanceCapMeters {
		return false
	}
	if subject.AreaM2 != nil && candidate.AreaM2 != nil && *subject.AreaM2 > 0 {
		ratio := math.Abs(*candidate.AreaM2-*subject.AreaM2) / *subject.AreaM2
		if ratio > areaRatioTolerance {
			return false
		}
	}
	if subject.Rooms != nil && candidate.Rooms != nil {
		if math.Abs(*subject.Rooms-*candidate.Rooms) > roomCountTolerance {
			return false
		}
	}
	return true
}

// Resolve snapshots the subject's comparables and attaches it to the best
// matching group, or founds a singleton group when nothing scores high
// enough.
func (r *Resolver) Resolve(ctx context.Context, subject *models.Listing) error {
	comparables, err := r.FindComparables(ctx, subject)
	if err != nil {
		return err
	}

	matches := make([]*models.CompMatch, 0, len(comparables))
	for _, comp := range comparables {
		matches = append(matches, &models.CompMatch{
			ID:             common.NewMatchID(),
			SubjectID:      subject.ID,
			CandidateID:    comp.Listing.ID,
			DistanceMeters: math.Max(comp.DistanceMeters, 0),
			PricePerArea:   comp.Listing.PricePerArea(),
			Score:          comp.Score,
		})
	}
	if err := r.listings.ReplaceMatches(ctx, subject.ID, matches); err != nil {
		return fmt.Errorf("resolver: replace matches: %w", err)
	}

	return r.assignGroup(ctx, subject, comparables)
}

func (r *Resolver) assignGroup(ctx context.Context, subject *models.Listing, comparables []*ScoredCandidate) error {
	if subject.GroupID != "" {
		// Already grouped: membership only changes via manual split
		r.rebuildGroupStats(ctx, subject.GroupID)
		return nil
	}

	groupID := ""
	if len(comparables) > 0 && comparables[0].Score >= attachThreshold {
		groupID = comparables[0].Listing.GroupID
	}

	if groupID == "" {
		group := r.newSingletonGroup(subject)
		if err := r.listings.SaveGroup(ctx, group); err != nil {
			return fmt.Errorf("resolver: create group: %w", err)
		}
		groupID = group.ID
	}

	subject.GroupID = groupID
	if err := r.listings.SaveListing(ctx, subject); err != nil {
		return fmt.Errorf("resolver: assign group: %w", err)
	}

	r.rebuildGroupStats(ctx, groupID)
	return nil
}

// SplitFromGroup forces a listing out of its group into a brand-new
// singleton group. Stats rebuilds for both groups are best-effort: the
// split itself is the authoritative action.
func (r *Resolver) SplitFromGroup(ctx context.Context, listingID string) (string, error) {
	listing, err := r.listings.GetListing(ctx, listingID)
	if err != nil {
		return "", fmt.Errorf("resolver: load listing: %w", err)
	}

	oldGroupID := listing.GroupID
	group := r.newSingletonGroup(listing)
	if err := r.listings.SaveGroup(ctx, group); err != nil {
		return "", fmt.Errorf("resolver: create split group: %w", err)
	}

	listing.GroupID = group.ID
	if err := r.listings.SaveListing(ctx, listing); err != nil {
		return "", fmt.Errorf("resolver: move listing to split group: %w", err)
	}

	r.logger.Info().
		Str("listing_id", listingID).
		Str("old_group", oldGroupID).
		Str("new_group", group.ID).
		Msg("Listing split into new group")

	if oldGroupID != "" {
		r.rebuildGroupStats(ctx, oldGroupID)
	}
	r.rebuildGroupStats(ctx, group.ID)
	return group.ID, nil
}

func (r *Resolver) newSingletonGroup(listing *models.Listing) *models.DedupGroup {
	group := &models.DedupGroup{
		ID:           common.NewGroupID(),
		Signature:    listing.ContentHash,
		City:         listing.City,
		AreaSlug:     listing.AreaSlug,
		CanonicalURL: listing.SourceURL,
		ItemCount:    1,
	}
	if listing.HasCoordinates() {
		group.CentroidLat = *listing.Lat
		group.CentroidLng = *listing.Lng
	}
	return group
}

// rebuildGroupStats recomputes centroid, item count and canonical URL from
// current membership. Best-effort: failures are logged, never propagated.
func (r *Resolver) rebuildGroupStats(ctx context.Context, groupID string) {
	if err := r.doRebuildGroupStats(ctx, groupID); err != nil {
		r.logger.Warn().Err(err).Str("group_id", groupID).Msg("Group stats rebuild failed")
	}
}

func (r *Resolver) doRebuildGroupStats(ctx context.Context, groupID string) error {
	group, err := r.listings.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	members, err := r.listings.ListByGroup(ctx, groupID)
	if err != nil {
		return err
	}

	group.ItemCount = len(members)
	if len(members) > 0 {
		// Members are sorted by creation time; the oldest is canonical
		group.CanonicalURL = members[0].SourceURL

		var latSum, lngSum float64
		located := 0
		for _, member := range members {
			if member.HasCoordinates() {
				latSum += *member.Lat
				lngSum += *member.Lng
				located++
			}
		}
		if located > 0 {
			group.CentroidLat = latSum / float64(located)
			group.CentroidLng = lngSum / float64(located)
		}
	}

	return r.listings.SaveGroup(ctx, group)
}
