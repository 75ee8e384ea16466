package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journalrag/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("DB_HOST", "test-host")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
	assert.Equal(t, "test-key", cfg.GeminiAPIKey)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, "JournalChunk", cfg.WeaviateClass)
	assert.Equal(t, "gemini-2.0-flash", cfg.GenerativeModel)
	assert.Equal(t, config.UsageModeSync, cfg.UsageMode)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	content := []byte("GEMINI_API_KEY=from-file\nDB_HOST=loaded-from-file")
	require.NoError(t, os.WriteFile(".env", content, 0o644))
	defer os.Remove(".env")
	defer os.Unsetenv("GEMINI_API_KEY")
	defer os.Unsetenv("DB_HOST")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
	assert.Equal(t, "from-file", cfg.GeminiAPIKey)
}

func TestLoadConfig_MissingAPIKeyFailsFast(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := config.Load()
	assert.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingRequired)
	assert.Nil(t, cfg)
}

func TestLoadConfig_UsageMode(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("USAGE_MODE", "queue")
	t.Setenv("USAGE_TIMEOUT_SECONDS", "5")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.UsageModeQueue, cfg.UsageMode)
	assert.Equal(t, 5, cfg.UsageTimeoutSeconds)
}
