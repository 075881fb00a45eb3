package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/casaval/casaval/internal/common"
	"github.com/casaval/casaval/internal/interfaces"
)

// Manager implements interfaces.StorageManager over a single BadgerDB
type Manager struct {
	db       *BadgerDB
	jobs     interfaces.JobStorage
	listings interfaces.ListingStorage
	fetch    interfaces.FetchStorage
	logger   arbor.ILogger
}

// NewManager opens the database and wires the typed stores
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}
	return newManager(db, logger), nil
}

// NewManagerInMemory wires the stores over an in-memory database, for tests
func NewManagerInMemory(logger arbor.ILogger) (*Manager, error) {
	db, err := NewBadgerDBInMemory(logger)
	if err != nil {
		return nil, err
	}
	return newManager(db, logger), nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:       db,
		jobs:     NewJobStorage(db, logger),
		listings: NewListingStorage(db, logger),
		fetch:    NewFetchStorage(db, logger),
		logger:   logger,
	}
}

func (m *Manager) Jobs() interfaces.JobStorage {
	return m.jobs
}

func (m *Manager) Listings() interfaces.ListingStorage {
	return m.listings
}

func (m *Manager) Fetch() interfaces.FetchStorage {
	return m.fetch
}

// Close closes the underlying database connection
func (m *Manager) Close() error {
	return m.db.Close()
}
