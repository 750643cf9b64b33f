package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))

	require.Equal(t, DefaultAppConfig.Bridge.ReconcileInterval, cfg.Bridge.ReconcileInterval)
	require.Equal(t, DefaultAppConfig.Outbox.Concurrency, cfg.Outbox.Concurrency)
	require.Equal(t, "postgres", cfg.Database.Type)
}

func TestLoadConfigFileAndFallbacks(t *testing.T) {
	body := `
system:
  workdir: /tmp/chatmux-test
bridge:
  reconnect_delay: 10s
outbox:
  concurrency: 0
`
	cfile := filepath.Join(t.TempDir(), "chatmux.yml")
	require.NoError(t, os.WriteFile(cfile, []byte(body), 0o644))

	cfg := LoadConfig(cfile)
	require.Equal(t, "/tmp/chatmux-test", cfg.System.Workdir)
	require.Equal(t, 10*time.Second, cfg.Bridge.ReconnectDelay)
	// Zero values fall back to the defaults instead of disabling the worker.
	require.Equal(t, DefaultAppConfig.Outbox.Concurrency, cfg.Outbox.Concurrency)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CHATMUX_DB_TYPE", "sqlite")
	t.Setenv("CHATMUX_REALTIME_ENDPOINT", "https://soketi.example.com")

	cfg := LoadConfig("")
	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, "https://soketi.example.com", cfg.Realtime.Endpoint)
}
