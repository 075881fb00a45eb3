// Package app wires configuration, storage and services into one
// application object with a single lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/casaval/casaval/internal/common"
	"github.com/casaval/casaval/internal/interfaces"
	"github.com/casaval/casaval/internal/services/extract"
	"github.com/casaval/casaval/internal/services/fetcher"
	"github.com/casaval/casaval/internal/services/ingest"
	"github.com/casaval/casaval/internal/services/politeness"
	"github.com/casaval/casaval/internal/services/scheduler"
	"github.com/casaval/casaval/internal/services/similarity"
	"github.com/casaval/casaval/internal/services/sources"
	"github.com/casaval/casaval/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	Gate      *politeness.Gate
	Fetcher   *fetcher.Fetcher
	Extractor interfaces.Extractor
	Writer    *ingest.Writer
	Resolver  *similarity.Resolver
	Scheduler *scheduler.Service
}

// New initializes storage and the service graph
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	httpClient := &http.Client{Timeout: config.Crawler.RequestTimeout}

	robots := politeness.NewRobotsChecker(httpClient, config.Crawler.UserAgent, config.Crawler.RobotsCacheTTL, logger)
	gate := politeness.NewGate(storageManager.Fetch(), robots, config.Crawler.DefaultMinDelay, config.Crawler.DomainConcurrency, logger)

	f := fetcher.New(storageManager.Fetch(), fetcher.Options{
		UserAgent:   config.Crawler.UserAgent,
		Timeout:     config.Crawler.RequestTimeout,
		MaxBodySize: int64(config.Crawler.MaxBodySize),
		Client:      httpClient,
	}, logger)

	extractor := extract.New(logger)
	resolver := similarity.NewResolver(storageManager.Listings(), config.Dedup.CandidateWindowDays, config.Dedup.MaxComparables, logger)
	writer := ingest.NewWriter(storageManager.Listings(), resolver, logger)

	sched := scheduler.NewService(&config.Crawler, storageManager, gate, f, extractor, writer, logger)

	return &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		Gate:           gate,
		Fetcher:        f,
		Extractor:      extractor,
		Writer:         writer,
		Resolver:       resolver,
		Scheduler:      sched,
	}, nil
}

// Start loads the sources file and begins scheduled crawling
func (a *App) Start(ctx context.Context) error {
	if path := a.Config.Sources.File; path != "" {
		if _, err := os.Stat(path); err == nil {
			loader := sources.NewLoader(a.StorageManager.Fetch(), a.StorageManager.Jobs(), a.Logger)
			if err := loader.Load(ctx, path); err != nil {
				return fmt.Errorf("failed to load sources: %w", err)
			}
		} else {
			a.Logger.Warn().Str("file", path).Msg("Sources file not found, starting with empty source set")
		}
	}

	if a.Config.Crawler.Enabled {
		if err := a.Scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		a.Logger.Info().Msg("Crawler disabled, scheduler not started")
	}

	return nil
}

// Close stops the scheduler and releases storage
func (a *App) Close() {
	a.Scheduler.Stop()
	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Failed to close storage")
	}
}
