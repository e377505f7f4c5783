package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, familyDir, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pulsedeck.yaml")
	content := `
server:
  port: 9090
  host: 127.0.0.1
  mode: debug
database:
  dsn: postgres://localhost:5432/test?sslmode=disable
metrics:
  config_dir: ` + familyDir + "\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func familyDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "items.yaml"),
		[]byte("name: items\nrecord_types: [items]\n"),
		0o644,
	))
	return dir
}

func TestLoad_AppliesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, familyDir(t), "")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.Mode)

	// Defaults survive where the file is silent.
	require.Equal(t, 25, cfg.Database.MaxOpenConns)
	require.Equal(t, 30*time.Second, cfg.Metrics.RefreshIntervalDuration())
	require.Equal(t, time.Hour, cfg.Metrics.RollingWindowDuration())
	require.Equal(t, 24*time.Hour, cfg.Metrics.AnchorWindowDuration())
	require.Equal(t, 7*24*time.Hour, cfg.Metrics.MaxLookback())
	require.Equal(t, 10000, cfg.Metrics.FetchLimit)
	require.False(t, cfg.Push.Enabled)

	require.Len(t, cfg.Families.List(), 1)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, familyDir(t), "")
	t.Setenv("PULSEDECK_METRICS__REFRESH_INTERVAL", "10s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.Metrics.RefreshIntervalDuration())
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		extra string
	}{
		{name: "bad refresh interval", extra: "  refresh_interval: nope\n"},
		{name: "anchor shorter than rolling", extra: "  rolling_window: 48h\n"},
		{name: "zero lookback", extra: "  max_lookback_days: 0\n"},
		{name: "zero fetch limit", extra: "  fetch_limit: 0\n"},
		{name: "push enabled without url", extra: "push:\n  enabled: true\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, familyDir(t), tc.extra)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoad_RequiresFamiliesWhenConfigured(t *testing.T) {
	empty := t.TempDir()
	path := writeConfig(t, empty, "")
	_, err := Load(path)
	require.Error(t, err)

	path = writeConfig(t, empty, "  require_families: false\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Empty(t, cfg.Families.List())
}
