package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/casaval/casaval/internal/interfaces"
	"github.com/casaval/casaval/internal/models"
)

// ErrListingNotFound is returned when a listing or group ID does not exist
var ErrListingNotFound = errors.New("listing not found")

// ListingStorage implements the ListingStorage interface for Badger
type ListingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewListingStorage creates a new ListingStorage instance
func NewListingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ListingStorage {
	return &ListingStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ListingStorage) SaveListing(ctx context.Context, listing *models.Listing) error {
	if listing.ID == "" {
		return fmt.Errorf("listing ID is required")
	}
	listing.UpdatedAt = time.Now()
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = listing.UpdatedAt
	}
	if err := s.db.Store().Upsert(listing.ID, listing); err != nil {
		return fmt.Errorf("failed to save listing: %w", err)
	}
	return nil
}

func (s *ListingStorage) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	var listing models.Listing
	if err := s.db.Store().Get(id, &listing); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrListingNotFound, id)
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

func (s *ListingStorage) GetBySourceURL(ctx context.Context, sourceURL string) (*models.Listing, error) {
	var listings []models.Listing
	query := badgerhold.Where("SourceURL").Eq(sourceURL).Index("SourceURL").
		SortBy("CreatedAt").Reverse().Limit(1)
	if err := s.db.Store().Find(&listings, query); err != nil {
		return nil, fmt.Errorf("failed to find listing by source url: %w", err)
	}
	if len(listings) == 0 {
		return nil, nil
	}
	return &listings[0], nil
}

func (s *ListingStorage) FindActiveByContentHash(ctx context.Context, hash string) (*models.Listing, error) {
	if hash == "" {
		return nil, nil
	}
	var listing models.Listing
	query := badgerhold.Where("ContentHash").Eq(hash).Index("ContentHash").
		And("Status").Eq(models.ListingStatusActive)
	err := s.db.Store().FindOne(&listing, query)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find listing by content hash: %w", err)
	}
	return &listing, nil
}

// FindCandidates applies the coarse candidate pre-filter (recency window,
// city, active status). Geo distance, area ratio and room distance are the
// resolver's fine filter.
func (s *ListingStorage) FindCandidates(ctx context.Context, filter interfaces.CandidateFilter) ([]*models.Listing, error) {
	var listings []models.Listing
	query := badgerhold.Where("Status").Eq(models.ListingStatusActive)
	if err := s.db.Store().Find(&listings, query); err != nil {
		return nil, fmt.Errorf("failed to find candidate listings: %w", err)
	}

	result := make([]*models.Listing, 0, len(listings))
	for i := range listings {
		candidate := &listings[i]
		if candidate.ID == filter.ExcludeID {
			continue
		}
		if !filter.Since.IsZero() && candidate.CreatedAt.Before(filter.Since) {
			continue
		}
		// City filter only applies when both sides know their city
		if filter.City != "" && candidate.City != "" &&
			!strings.EqualFold(filter.City, candidate.City) {
			continue
		}
		result = append(result, candidate)
	}
	return result, nil
}

func (s *ListingStorage) ListByGroup(ctx context.Context, groupID string) ([]*models.Listing, error) {
	var listings []models.Listing
	query := badgerhold.Where("GroupID").Eq(groupID).Index("GroupID").SortBy("CreatedAt")
	if err := s.db.Store().Find(&listings, query); err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	result := make([]*models.Listing, len(listings))
	for i := range listings {
		result[i] = &listings[i]
	}
	return result, nil
}

func (s *ListingStorage) SaveGroup(ctx context.Context, group *models.DedupGroup) error {
	if group.ID == "" {
		return fmt.Errorf("group ID is required")
	}
	group.UpdatedAt = time.Now()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = group.UpdatedAt
	}
	if err := s.db.Store().Upsert(group.ID, group); err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

func (s *ListingStorage) GetGroup(ctx context.Context, id string) (*models.DedupGroup, error) {
	var group models.DedupGroup
	if err := s.db.Store().Get(id, &group); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: group %s", ErrListingNotFound, id)
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &group, nil
}

// ReplaceMatches swaps the subject's comp-match snapshot inside one badger
// transaction, so a crash mid-rebuild never leaves the subject with zero
// comparables.
func (s *ListingStorage) ReplaceMatches(ctx context.Context, subjectID string, matches []*models.CompMatch) error {
	if subjectID == "" {
		return fmt.Errorf("subject ID is required")
	}

	err := s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		query := badgerhold.Where("SubjectID").Eq(subjectID).Index("SubjectID")
		if err := s.db.Store().TxDeleteMatching(tx, &models.CompMatch{}, query); err != nil {
			return fmt.Errorf("failed to delete existing matches: %w", err)
		}
		for _, match := range matches {
			if match.ID == "" {
				return fmt.Errorf("match ID is required")
			}
			match.SubjectID = subjectID
			if match.CreatedAt.IsZero() {
				match.CreatedAt = time.Now()
			}
			if err := s.db.Store().TxInsert(tx, match.ID, match); err != nil {
				return fmt.Errorf("failed to insert match: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace matches for %s: %w", subjectID, err)
	}
	return nil
}

func (s *ListingStorage) ListMatches(ctx context.Context, subjectID string) ([]*models.CompMatch, error) {
	var matches []models.CompMatch
	query := badgerhold.Where("SubjectID").Eq(subjectID).Index("SubjectID").
		SortBy("Score").Reverse()
	if err := s.db.Store().Find(&matches, query); err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	result := make([]*models.CompMatch, len(matches))
	for i := range matches {
		result[i] = &matches[i]
	}
	return result, nil
}
