// Package sources loads the operator-maintained sources file: per-domain
// politeness settings plus seed URLs for discovery.
package sources

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/casaval/casaval/internal/interfaces"
	"github.com/casaval/casaval/internal/models"
)

// File is the on-disk sources document
type File struct {
	Sources []SourceEntry `yaml:"sources"`
}

// SourceEntry configures one domain and its discovery seeds. A nil
// Enabled means enabled; Seeds are discover pages crawled at high
// priority.
type SourceEntry struct {
	Domain     string   `yaml:"domain"`
	Enabled    *bool    `yaml:"enabled"`
	MinDelayMs int      `yaml:"min_delay_ms"`
	Seeds      []string `yaml:"seeds"`
}

// Loader applies a sources file to storage
type Loader struct {
	fetch  interfaces.FetchStorage
	jobs   interfaces.JobStorage
	logger arbor.ILogger
}

// NewLoader creates a Loader
func NewLoader(fetch interfaces.FetchStorage, jobs interfaces.JobStorage, logger arbor.ILogger) *Loader {
	return &Loader{
		fetch:  fetch,
		jobs:   jobs,
		logger: logger,
	}
}

// Load parses the file, upserts source rows and enqueues seed discover
// jobs. Idempotent: rerunning with the same file changes nothing but
// politeness settings.
func (l *Loader) Load(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("sources: read %s: %w", path, err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("sources: parse %s: %w", path, err)
	}

	seeded := 0
	for _, entry := range file.Sources {
		if entry.Domain == "" {
			return fmt.Errorf("sources: entry without domain in %s", path)
		}

		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		source := &models.ListingSource{
			Domain:     entry.Domain,
			Enabled:    enabled,
			MinDelayMs: entry.MinDelayMs,
		}
		if err := l.fetch.UpsertSource(ctx, source); err != nil {
			return fmt.Errorf("sources: upsert %s: %w", entry.Domain, err)
		}

		for _, seed := range entry.Seeds {
			job := &models.CrawlJob{
				URL:      seed,
				Kind:     models.JobKindDiscover,
				Priority: 10,
			}
			inserted, err := l.jobs.Enqueue(ctx, job)
			if err != nil {
				l.logger.Warn().Err(err).Str("url", seed).Msg("Failed to enqueue seed")
				continue
			}
			if inserted {
				seeded++
			}
		}
	}

	l.logger.Info().
		Int("sources", len(file.Sources)).
		Int("seeds_enqueued", seeded).
		Str("file", path).
		Msg("Sources file loaded")
	return nil
}
