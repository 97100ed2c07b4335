package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WEBMON_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	s, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8321", s.Addr)
	require.Equal(t, time.Second, s.Tick())
	require.Equal(t, 10, s.Workers)
	require.Equal(t, 30, s.RetentionDays)
	require.InDelta(t, 0.9, s.AvailabilityMin, 1e-9)
	require.Equal(t, filepath.Join(s.RootDir, "monitor.db"), s.DBPath)
	require.Equal(t, filepath.Join(s.RootDir, "monitor.pid"), s.PIDFile())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
root_dir: ` + dir + `
addr: "0.0.0.0:9000"
tick_seconds: 2
workers: 4
retention_days: 7
availability_min: 0.5
webhook_url: "https://hooks.example.com/webmon"
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", s.Addr)
	require.Equal(t, 2*time.Second, s.Tick())
	require.Equal(t, 4, s.Workers)
	require.Equal(t, 7, s.RetentionDays)
	require.InDelta(t, 0.5, s.AvailabilityMin, 1e-9)
	require.Equal(t, "https://hooks.example.com/webmon", s.WebhookURL)
	require.Equal(t, filepath.Join(dir, "logs"), s.LogDir)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retention_days: 7\nworkers: 4\n"), 0o644))

	t.Setenv("WEBMON_RETENTION_DAYS", "14")
	t.Setenv("WEBMON_PURGE_RESOLVED_ALERTS", "yes")

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 14, s.RetentionDays)
	require.Equal(t, 4, s.Workers)
	require.True(t, s.PurgeResolvedAlerts)
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"zero tick", "tick_seconds: 0", "tick_seconds"},
		{"negative workers", "workers: -1", "workers"},
		{"zero retention", "retention_days: 0", "retention_days"},
		{"availability over one", "availability_min: 1.5", "availability_min"},
		{"garbage yaml", "workers: [1,", "parse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.raw), 0o644))
			_, err := Load(path)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
