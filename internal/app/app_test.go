package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchtower/internal/app"
	"watchtower/internal/config"
	"watchtower/internal/di"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Cache.Dir = t.TempDir()
	// Ephemeral ports so parallel test runs never collide.
	cfg.Health.Addr = "127.0.0.1:0"
	cfg.Metrics.ExporterAddr = "127.0.0.1:0"
	return cfg
}

func TestStartStopDrainsForwarder(t *testing.T) {
	a, err := di.InitializeApp(testConfig(t))
	require.NoError(t, err)

	a.Start(context.Background())
	a.Forwarder.Increment("startup_events_total", nil, 1)

	require.NoError(t, a.Stop())
	assert.Equal(t, 1.0, a.Registry.CounterValue("startup_events_total", nil))
}

func TestStopIsCleanWithoutStart(t *testing.T) {
	a, err := di.InitializeApp(testConfig(t))
	require.NoError(t, err)
	assert.NoError(t, a.Stop())
}

func TestDefaultAlertChannels(t *testing.T) {
	cfg := testConfig(t)
	a, err := di.InitializeApp(cfg)
	require.NoError(t, err)

	// Log channel only when nothing else is configured.
	assert.Len(t, a.DefaultAlertChannels(), 1)

	cfg.Alerting.ChatWebhookURL = "https://chat.example.com/hook"
	cfg.Alerting.WebhookURL = "https://ops.example.com/hook"
	assert.Len(t, a.DefaultAlertChannels(), 3)
}

func TestDefaultAccessorLifecycle(t *testing.T) {
	_, err := app.Default()
	require.ErrorIs(t, err, app.ErrNotInitialized)

	a, err := di.InitializeApp(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, app.Init(a))
	t.Cleanup(func() { _ = app.Teardown() })

	got, err := app.Default()
	require.NoError(t, err)
	assert.Same(t, a, got)

	assert.Error(t, app.Init(a), "second Init must be rejected")

	require.NoError(t, app.Teardown())
	_, err = app.Default()
	assert.ErrorIs(t, err, app.ErrNotInitialized)
}

func TestWatchConfigUpdatesNormalizer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "environment: development\n")

	a, err := di.InitializeApp(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, a.WatchConfig(path))

	a.Start(context.Background())
	t.Cleanup(func() { _ = a.Stop() })

	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, `
normalization:
  player:
    median: 0.1
    mad: 0.05
`)

	require.Eventually(t, func() bool {
		// A configured entity stops passing deltas through unscaled.
		return a.Normalizer.Normalize("player", 0.1) == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}
