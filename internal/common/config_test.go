package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 10, config.Crawler.BatchSize)
	assert.Equal(t, 3, config.Crawler.MaxAttempts)
	assert.Equal(t, 15*time.Second, config.Crawler.RequestTimeout)
	assert.Equal(t, 5*time.Minute, config.Crawler.RetryBackoff)
	assert.Equal(t, 2, config.Crawler.DomainConcurrency)
	assert.Equal(t, 180, config.Dedup.CandidateWindowDays)
	assert.Equal(t, 12, config.Dedup.MaxComparables)

	require.NoError(t, config.Validate())
}

func TestLoadFromFiles_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "casaval.toml")
	content := `
[server]
port = 9090

[crawler]
batch_size = 25
request_timeout = "20s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 25, config.Crawler.BatchSize)
	assert.Equal(t, 20*time.Second, config.Crawler.RequestTimeout)
	// Untouched settings keep their defaults
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 3, config.Crawler.MaxAttempts)
}

func TestLoadFromFiles_LaterFileWins(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.toml")
	second := filepath.Join(dir, "second.toml")
	require.NoError(t, os.WriteFile(first, []byte("[server]\nport = 9001\n"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("[server]\nport = 9002\n"), 0644))

	config, err := LoadFromFiles(first, second)
	require.NoError(t, err)
	assert.Equal(t, 9002, config.Server.Port)
}

func TestLoadFromFiles_EnvOverride(t *testing.T) {
	t.Setenv("CASAVAL_SERVER_PORT", "7070")
	t.Setenv("CASAVAL_CRAWLER_BATCH_SIZE", "5")

	config, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, 5, config.Crawler.BatchSize)
}

func TestValidate_RejectsInvalidConfig(t *testing.T) {
	config := NewDefaultConfig()
	config.Crawler.BatchSize = 0
	assert.Error(t, config.Validate())

	config = NewDefaultConfig()
	config.Logging.Level = "verbose"
	assert.Error(t, config.Validate())
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 9999, "0.0.0.0")
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	// Zero values leave config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}
