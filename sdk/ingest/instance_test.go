package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_Idempotent(t *testing.T) {
	_, err := Instance()
	require.ErrorIs(t, err, ErrNotInitialized)
	require.Nil(t, Current())

	first, err := Init(testConfig("http://ingest.local"), WithSender(newMemorySender()))
	require.NoError(t, err)

	other := testConfig("http://elsewhere.local")
	other.AppName = "other"
	second, err := Init(other)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, "shop", second.Config().AppName)

	got, err := Instance()
	require.NoError(t, err)
	require.Same(t, first, got)

	first.Close(context.Background())
	require.Nil(t, Current())
	_, err = Instance()
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestInit_InvalidConfigLeavesNoInstance(t *testing.T) {
	_, err := Init(Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Nil(t, Current())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appsight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: https://ingest.example.com
ingest_key: secret
app_name: shop
app_version: 2.1.0
debug: true
batch_size: 20
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "https://ingest.example.com", cfg.APIURL)
	require.Equal(t, "2.1.0", cfg.AppVersion)
	require.True(t, cfg.Debug)
	require.Equal(t, 20, cfg.BatchSize)
	require.Zero(t, cfg.FlushIntervalSeconds)
	require.NoError(t, cfg.withDefaults().Validate())
}
