package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
	Crawler     CrawlerConfig `toml:"crawler"`
	Dedup       DedupConfig   `toml:"dedup"`
	Sources     SourcesConfig `toml:"sources"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=debug info warn error"` // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`                                       // "stdout", "file"
	TimeFormat string   `toml:"time_format"`                                  // Time format for logs
}

// CrawlerConfig contains crawl scheduling and politeness configuration
type CrawlerConfig struct {
	Enabled           bool          `toml:"enabled"`            // Run scheduler ticks automatically
	Schedule          string        `toml:"schedule"`           // Cron schedule for scheduler ticks
	BatchSize         int           `toml:"batch_size" validate:"min=1"`         // Jobs claimed per tick
	UserAgent         string        `toml:"user_agent" validate:"required"`      // Identifying user agent sent on every request
	RequestTimeout    time.Duration `toml:"request_timeout" validate:"min=1s"`   // Absolute per-request timeout
	MaxBodySize       int           `toml:"max_body_size" validate:"min=1024"`   // Maximum response body size in bytes
	MaxAttempts       int           `toml:"max_attempts" validate:"min=1"`       // Fetch attempts before a job is terminal
	RetryBackoff      time.Duration `toml:"retry_backoff" validate:"min=1s"`     // Base backoff, scaled linearly by attempt count
	RequeueDelay      time.Duration `toml:"requeue_delay"`                       // Reschedule delay when the politeness gate denies
	DefaultMinDelay   time.Duration `toml:"default_min_delay" validate:"min=0"`  // Per-domain delay when no source row exists
	DomainConcurrency int           `toml:"domain_concurrency" validate:"min=1"` // Simultaneous in-flight fetches per domain
	RobotsCacheTTL    time.Duration `toml:"robots_cache_ttl"`                    // In-memory robots.txt cache lifetime
	LockTTL           time.Duration `toml:"lock_ttl"`                            // Fetching jobs locked longer than this are requeued
}

// DedupConfig contains dedup resolver tunables. Scoring weights are fixed
// constants in the similarity package; only pool sizing lives in config.
type DedupConfig struct {
	CandidateWindowDays int `toml:"candidate_window_days" validate:"min=1"` // Candidate pool recency window
	MaxComparables      int `toml:"max_comparables" validate:"min=1"`       // CompMatch rows kept per subject
}

// SourcesConfig points at the operator-maintained seed/source file
type SourcesConfig struct {
	File string `toml:"file"` // YAML file with per-domain politeness config and seed URLs
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only operator-facing settings belong in casaval.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Crawler: CrawlerConfig{
			Enabled:           true,
			Schedule:          "@every 1m",
			BatchSize:         10,
			UserAgent:         "CasavalBot/1.0 (+https://casaval.example/bot)",
			RequestTimeout:    15 * time.Second,
			MaxBodySize:       10 * 1024 * 1024, // 10MB
			MaxAttempts:       3,
			RetryBackoff:      5 * time.Minute,
			RequeueDelay:      30 * time.Second,
			DefaultMinDelay:   1 * time.Second,
			DomainConcurrency: 2,
			RobotsCacheTTL:    1 * time.Hour,
			LockTTL:           10 * time.Minute,
		},
		Dedup: DedupConfig{
			CandidateWindowDays: 180,
			MaxComparables:      12,
		},
		Sources: SourcesConfig{
			File: "./sources.yaml",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration against struct validation tags
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CASAVAL_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("CASAVAL_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CASAVAL_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if path := os.Getenv("CASAVAL_STORAGE_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if level := os.Getenv("CASAVAL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if schedule := os.Getenv("CASAVAL_CRAWLER_SCHEDULE"); schedule != "" {
		config.Crawler.Schedule = schedule
	}
	if ua := os.Getenv("CASAVAL_CRAWLER_USER_AGENT"); ua != "" {
		config.Crawler.UserAgent = ua
	}
	if batch := os.Getenv("CASAVAL_CRAWLER_BATCH_SIZE"); batch != "" {
		if b, err := strconv.Atoi(batch); err == nil {
			config.Crawler.BatchSize = b
		}
	}

	if file := os.Getenv("CASAVAL_SOURCES_FILE"); file != "" {
		config.Sources.File = file
	}
}
