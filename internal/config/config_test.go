package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configPathEnv, databaseDSNEnv, postgresHostEnv, postgresPortEnv, postgresDBEnv,
		postgresUserEnv, postgresPasswordEnv, telegramTokenEnv, telegramChatIDEnv,
		mlInferenceURLEnv, mlAPIKeyEnv, minioAccessKeyEnv, minioSecretKeyEnv, channelsEnv,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	assert.Equal(t, []string{"@cheMed123", "@lobelia4cosmetics", "@tikvahpharma"}, cfg.Scraper.Channels)
	assert.Equal(t, 200, cfg.Scraper.Limit)
	assert.Equal(t, 500*time.Millisecond, cfg.Scraper.MessageDelay)
	assert.Equal(t, 3*time.Second, cfg.Scraper.ChannelDelay)
	assert.Equal(t, 1000, cfg.Database.PageSize)
	assert.Equal(t, 500, cfg.Database.DetectionPageSize)
	assert.Equal(t, 50, cfg.Pipeline.MaxFilesPerLoad)
	assert.InDelta(t, 0.15, cfg.ML.Threshold, 1e-9)
	assert.Equal(t, time.UTC, cfg.Scheduler.Location())
	assert.Empty(t, cfg.DatabaseDSN())
}

func TestLoadYAMLOverlay(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scraper:
  channels: ["@a", "@b"]
  messageDelay: 250ms
database:
  host: db
  name: warehouse
  user: etl
  password: secret
scheduler:
  timezone: Mars/Olympus_Mons
`), 0o644))
	t.Setenv(configPathEnv, path)

	cfg := Load()
	assert.Equal(t, []string{"@a", "@b"}, cfg.Scraper.Channels)
	assert.Equal(t, 250*time.Millisecond, cfg.Scraper.MessageDelay)
	assert.Equal(t, 3*time.Second, cfg.Scraper.ChannelDelay, "unset keys keep defaults")
	assert.Equal(t, "host=db port=5432 user=etl password=secret dbname=warehouse sslmode=disable", cfg.DatabaseDSN())
	assert.Equal(t, time.UTC, cfg.Scheduler.Location(), "unknown zones fall back to UTC")
}

func TestLoadBrokenYAMLFallsBack(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scraper: [unclosed"), 0o644))
	t.Setenv(configPathEnv, path)

	cfg := Load()
	assert.Equal(t, 200, cfg.Scraper.Limit)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(databaseDSNEnv, "postgres://u:p@h:5432/d")
	t.Setenv(channelsEnv, " @x , ,@y")
	t.Setenv(mlInferenceURLEnv, "http://ml:8000")
	t.Setenv(telegramTokenEnv, "TOKEN")

	cfg := Load()
	assert.Equal(t, "postgres://u:p@h:5432/d", cfg.DatabaseDSN())
	assert.Equal(t, []string{"@x", "@y"}, cfg.Scraper.Channels)
	assert.Equal(t, "http://ml:8000", cfg.ML.InferenceURL)
	assert.Equal(t, "TOKEN", cfg.Notifications.Telegram.BotToken)
}
