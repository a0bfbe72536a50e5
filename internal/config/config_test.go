package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sightline.db", cfg.DatabasePath)
	assert.Equal(t, 50, cfg.MaxPageSize)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, "http://localhost:8000", cfg.EngineConfig.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.EngineConfig.Timeout)
	assert.Equal(t, "http://localhost:7005", cfg.MediaConfig.BaseURL)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SIGHTLINE_ADDR", ":9999")
	t.Setenv("SIGHTLINE_MAX_PAGE_SIZE", "25")
	t.Setenv("SIGHTLINE_ENGINE_API_KEY", "k123")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 25, cfg.MaxPageSize)
	assert.Equal(t, "k123", cfg.EngineConfig.APIKey)
}

func TestLoadConfigYAMLOverridesEnv(t *testing.T) {
	t.Setenv("SIGHTLINE_ADDR", ":9999")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("addr: \":7777\"\nworker_count: 8\nengine:\n  base_url: http://engine.internal\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Addr)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, "http://engine.internal", cfg.EngineConfig.BaseURL)
	// fields absent from the file keep their defaults
	assert.Equal(t, 50, cfg.MaxPageSize)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("SIGHTLINE_TEST_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("SIGHTLINE_TEST_INT", 7))

	t.Setenv("SIGHTLINE_TEST_INT", "12")
	assert.Equal(t, 12, getEnvInt("SIGHTLINE_TEST_INT", 7))
}
