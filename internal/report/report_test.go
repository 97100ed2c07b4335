package report

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iyuangang/webservice-monitor/internal/db"
	"github.com/iyuangang/webservice-monitor/internal/models"
)

func TestBuildJoinsConfigsStatsAndAlerts(t *testing.T) {
	day := "2026-02-21"
	gen := time.Date(2026, 2, 22, 0, 10, 0, 0, time.UTC)
	cfgs := []models.MonitorConfig{
		{ID: 2, Name: "web", URL: "https://www.example.com"},
		{ID: 1, Name: "api", URL: "https://api.example.com"},
		{ID: 3, Name: "idle", URL: "https://idle.example.com"},
	}
	stats := []models.DailyStat{
		{ConfigID: 1, Day: day, TotalCalls: 10, SuccessCount: 9, SumResponse: 2.7, MinResponse: 0.1, MaxResponse: 0.9},
		{ConfigID: 2, Day: day, TotalCalls: 4, SuccessCount: 1},
	}
	resolved := time.Date(2026, 2, 21, 14, 0, 0, 0, time.UTC)
	alerts := []models.Alert{
		{ID: 1, ConfigID: 2, Type: models.AlertAvailability, OpenedAt: time.Date(2026, 2, 21, 13, 0, 0, 0, time.UTC), Message: "down"},
		{ID: 2, ConfigID: 1, Type: models.AlertPerformance, OpenedAt: time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC), Message: "slow", Resolved: true, ResolvedAt: &resolved},
		{ID: 3, ConfigID: 1, Type: models.AlertPerformance, OpenedAt: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC), Message: "old", Resolved: true, ResolvedAt: &resolved},
	}
	// Alert 3 resolved on the report day, so it shows; a resolved alert from
	// another day would not.
	old := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	alerts = append(alerts, models.Alert{ID: 4, ConfigID: 2, Type: models.AlertPerformance,
		OpenedAt: old, Message: "ancient", Resolved: true, ResolvedAt: &old})

	rep := Build(day, gen, cfgs, stats, alerts)

	require.Equal(t, day, rep.Day)
	require.Equal(t, 14, rep.TotalCalls)
	require.Equal(t, 1, rep.OpenAlerts)
	require.Len(t, rep.Configs, 3)
	// Sorted by name, zero stat filled in for the idle config.
	require.Equal(t, "api", rep.Configs[0].Config.Name)
	require.Equal(t, "idle", rep.Configs[1].Config.Name)
	require.Zero(t, rep.Configs[1].Stat.TotalCalls)
	require.Equal(t, "web", rep.Configs[2].Config.Name)

	require.Len(t, rep.Alerts, 3)
	require.Equal(t, "api", rep.Alerts[1].ConfigName)
	for _, row := range rep.Alerts {
		require.NotEqual(t, "ancient", row.Alert.Message)
	}
}

func TestBuildIsPure(t *testing.T) {
	day := "2026-02-21"
	gen := time.Date(2026, 2, 22, 0, 10, 0, 0, time.UTC)
	cfgs := []models.MonitorConfig{{ID: 1, Name: "api"}}
	stats := []models.DailyStat{{ConfigID: 1, Day: day, TotalCalls: 3, SuccessCount: 3}}

	a := Build(day, gen, cfgs, stats, nil)
	b := Build(day, gen, cfgs, stats, nil)
	require.Equal(t, a, b)
}

func TestRenderProducesHTML(t *testing.T) {
	day := "2026-02-21"
	gen := time.Date(2026, 2, 22, 0, 10, 0, 0, time.UTC)
	rep := Build(day, gen,
		[]models.MonitorConfig{{ID: 1, Name: "api", URL: "https://api.example.com"}},
		[]models.DailyStat{{ConfigID: 1, Day: day, TotalCalls: 4, SuccessCount: 3, SumResponse: 0.9, MinResponse: 0.1, MaxResponse: 0.5}},
		[]models.Alert{{ID: 1, ConfigID: 1, Type: models.AlertAvailability, OpenedAt: gen.Add(-time.Hour), Message: "down"}})

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rep))
	out := buf.String()
	require.Contains(t, out, "2026-02-21")
	require.Contains(t, out, "api")
	require.Contains(t, out, "75.0%")
	require.Contains(t, out, "availability")
}

func TestGenerateWritesFile(t *testing.T) {
	sqldb, err := db.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	require.NoError(t, db.Migrate(sqldb))
	repo := db.NewRepository(sqldb)

	ctx := context.Background()
	cfg := models.MonitorConfig{Name: "api", URL: "https://api.example.com", Method: "GET",
		IntervalSeconds: 60, CallsPerBatch: 1, TimeoutSeconds: 5, AlertThreshold: 1, IsActive: true}
	require.NoError(t, repo.CreateConfig(ctx, &cfg))
	day := time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC)
	code := 200
	require.NoError(t, repo.InsertResult(ctx, models.ProbeResult{
		ConfigID: cfg.ID, TS: day, Success: true, StatusCode: &code, ResponseTime: 0.2, Reason: models.FailureNone}))

	dir := t.TempDir()
	g := NewGenerator(repo, dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	path, err := g.Generate(ctx, day)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "report-2026-02-21.html"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "api")
	require.Contains(t, string(content), "100.0%")
}
