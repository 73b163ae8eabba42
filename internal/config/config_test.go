package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, ":8090", cfg.HTTP.Addr)
	require.Equal(t, 20*time.Second, cfg.Fetch.Timeout)
	require.Equal(t, "fallback", cfg.Translation.ExhaustionPolicy)
	require.Equal(t, "Asia/Tehran", cfg.Location().String())
	require.Contains(t, cfg.Monitoring.TrackedJobs, "publish-due")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
timezone: UTC
translation:
  provider: openai
  dailyTokenLimit: 5000
scheduler:
  ingestInterval: 10m
`), 0o644))

	t.Setenv("NEWSDESK_CONFIG", path)
	t.Setenv("NEWSDESK_DB", "/tmp/override.db")
	t.Setenv("TRANSLATION_API_KEY", "sk-test")

	cfg := Load()

	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "UTC", cfg.Location().String())
	require.Equal(t, "openai", cfg.Translation.Provider)
	require.Equal(t, 5000, cfg.Translation.DailyTokenLimit)
	require.Equal(t, "sk-test", cfg.Translation.APIKey)
	require.Equal(t, "/tmp/override.db", cfg.Database.Path)
	require.Equal(t, 10*time.Minute, cfg.Scheduler.IngestInterval)

	// Untouched settings keep their defaults.
	require.Equal(t, 1*time.Minute, cfg.Scheduler.PublishInterval)
}

func TestLoadBadTimezoneFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timezone: Not/AZone\n"), 0o644))
	t.Setenv("NEWSDESK_CONFIG", path)

	cfg := Load()
	require.Equal(t, "Asia/Tehran", cfg.Location().String())
}
