package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TelegramWarehouse/internal/config"
)

func TestNewWithoutExternalServices(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Store.BasePath = t.TempDir()
	cfg.Scraper.Channels = []string{"@a"}

	application, err := New(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, application.pipeline)

	err = application.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is not configured")
}

func TestNewRejectsIncompleteArchive(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Archive.Enabled = true

	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestMetricsServerDisabledWithoutAddr(t *testing.T) {
	t.Parallel()

	application, err := New(config.Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, application.metricsServer())

	application.cfg.Metrics.ListenAddr = ":0"
	srv := application.metricsServer()
	require.NotNil(t, srv)
	assert.Equal(t, ":0", srv.Addr)
}
