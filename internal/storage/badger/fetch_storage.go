package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/casaval/casaval/internal/common"
	"github.com/casaval/casaval/internal/interfaces"
	"github.com/casaval/casaval/internal/models"
)

// FetchStorage implements the FetchStorage interface for Badger
type FetchStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewFetchStorage creates a new FetchStorage instance
func NewFetchStorage(db *BadgerDB, logger arbor.ILogger) interfaces.FetchStorage {
	return &FetchStorage{
		db:     db,
		logger: logger,
	}
}

func (s *FetchStorage) GetHostCache(ctx context.Context, url string) (*models.HostCacheEntry, error) {
	var entry models.HostCacheEntry
	if err := s.db.Store().Get(url, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get host cache entry: %w", err)
	}
	return &entry, nil
}

func (s *FetchStorage) PutHostCache(ctx context.Context, entry *models.HostCacheEntry) error {
	if entry.URL == "" {
		return fmt.Errorf("host cache URL is required")
	}
	entry.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(entry.URL, entry); err != nil {
		return fmt.Errorf("failed to save host cache entry: %w", err)
	}
	return nil
}

// AppendFetchLog inserts an audit row. Rows are never updated.
func (s *FetchStorage) AppendFetchLog(ctx context.Context, log *models.FetchLog) error {
	if log.ID == "" {
		log.ID = common.NewLogID()
	}
	if log.FetchedAt.IsZero() {
		log.FetchedAt = time.Now()
	}
	if err := s.db.Store().Insert(log.ID, log); err != nil {
		return fmt.Errorf("failed to append fetch log: %w", err)
	}
	return nil
}

func (s *FetchStorage) ListFetchLogs(ctx context.Context, url string, limit int) ([]*models.FetchLog, error) {
	query := badgerhold.Where("ID").Ne("")
	if url != "" {
		query = badgerhold.Where("URL").Eq(url).Index("URL")
	}
	query = query.SortBy("FetchedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var logs []models.FetchLog
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to list fetch logs: %w", err)
	}
	result := make([]*models.FetchLog, len(logs))
	for i := range logs {
		result[i] = &logs[i]
	}
	return result, nil
}

func (s *FetchStorage) GetSource(ctx context.Context, domain string) (*models.ListingSource, error) {
	var source models.ListingSource
	if err := s.db.Store().Get(domain, &source); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing source: %w", err)
	}
	return &source, nil
}

func (s *FetchStorage) UpsertSource(ctx context.Context, source *models.ListingSource) error {
	if source.Domain == "" {
		return fmt.Errorf("source domain is required")
	}
	source.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(source.Domain, source); err != nil {
		return fmt.Errorf("failed to save listing source: %w", err)
	}
	return nil
}

func (s *FetchStorage) ListSources(ctx context.Context) ([]*models.ListingSource, error) {
	var sources []models.ListingSource
	query := badgerhold.Where("Domain").Ne("").SortBy("Domain")
	if err := s.db.Store().Find(&sources, query); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	result := make([]*models.ListingSource, len(sources))
	for i := range sources {
		result[i] = &sources[i]
	}
	return result, nil
}
