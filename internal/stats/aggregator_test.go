package stats

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iyuangang/webservice-monitor/internal/db"
	"github.com/iyuangang/webservice-monitor/internal/models"
)

func testAggregator() *Aggregator {
	return NewAggregator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func result(configID int64, ts time.Time, success bool, rt float64) models.ProbeResult {
	reason := models.FailureNone
	if !success {
		reason = models.FailureHTTP
	}
	return models.ProbeResult{ConfigID: configID, TS: ts, Success: success, ResponseTime: rt, Reason: reason}
}

func TestObserveAggregatesSuccessOnly(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()
	cfg := models.MonitorConfig{ID: 1, Name: "api"}
	ts := time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC)

	a.Observe(ctx, cfg, result(1, ts, true, 0.2))
	a.Observe(ctx, cfg, result(1, ts.Add(time.Second), true, 1.5))
	a.Observe(ctx, cfg, result(1, ts.Add(2*time.Second), false, 9.9))
	a.Observe(ctx, cfg, result(1, ts.Add(3*time.Second), true, 0.4))

	stat, ok := a.Snapshot(1, models.DayOf(ts))
	require.True(t, ok)
	require.Equal(t, 4, stat.TotalCalls)
	require.Equal(t, 3, stat.SuccessCount)
	require.InDelta(t, 0.75, stat.SuccessRate(), 1e-9)
	require.InDelta(t, 2.1, stat.SumResponse, 1e-9)
	require.InDelta(t, 0.2, stat.MinResponse, 1e-9)
	require.InDelta(t, 1.5, stat.MaxResponse, 1e-9)
	require.InDelta(t, 0.7, stat.AvgResponse(), 1e-9)
}

func TestAllFailuresKeepRateZero(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()
	cfg := models.MonitorConfig{ID: 1}
	ts := time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC)

	a.Observe(ctx, cfg, result(1, ts, false, 5.0))
	a.Observe(ctx, cfg, result(1, ts.Add(time.Second), false, 5.0))

	stat, ok := a.Snapshot(1, models.DayOf(ts))
	require.True(t, ok)
	require.Equal(t, 2, stat.TotalCalls)
	require.Zero(t, stat.SuccessCount)
	require.Zero(t, stat.SuccessRate())
	require.Zero(t, stat.MinResponse)
	require.Zero(t, stat.MaxResponse)
	require.Zero(t, stat.AvgResponse())
}

func TestEvaluationCarriesUpdatedSnapshot(t *testing.T) {
	a := testAggregator()
	cfg := models.MonitorConfig{ID: 3, Name: "api"}
	ts := time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC)

	var got []Evaluation
	a.OnEvaluation = func(_ context.Context, ev Evaluation) { got = append(got, ev) }

	a.Observe(context.Background(), cfg, result(3, ts, true, 0.5))
	a.Observe(context.Background(), cfg, result(3, ts.Add(time.Second), false, 0.0))

	require.Len(t, got, 2)
	require.Equal(t, 1, got[0].Stat.TotalCalls)
	require.InDelta(t, 1.0, got[0].Stat.SuccessRate(), 1e-9)
	require.Equal(t, 2, got[1].Stat.TotalCalls)
	require.InDelta(t, 0.5, got[1].Stat.SuccessRate(), 1e-9)
	require.Equal(t, "api", got[1].Config.Name)
	require.False(t, got[1].Result.Success)
}

func TestDaysBucketIndependently(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()
	cfg := models.MonitorConfig{ID: 1}
	evening := time.Date(2026, 2, 21, 23, 59, 30, 0, time.UTC)
	morning := time.Date(2026, 2, 22, 0, 0, 30, 0, time.UTC)

	a.Observe(ctx, cfg, result(1, evening, true, 0.2))
	a.Observe(ctx, cfg, result(1, morning, true, 0.4))

	d1, ok := a.Snapshot(1, "2026-02-21")
	require.True(t, ok)
	require.Equal(t, 1, d1.TotalCalls)
	d2, ok := a.Snapshot(1, "2026-02-22")
	require.True(t, ok)
	require.Equal(t, 1, d2.TotalCalls)

	a.Forget("2026-02-22")
	_, ok = a.Snapshot(1, "2026-02-21")
	require.False(t, ok)
	_, ok = a.Snapshot(1, "2026-02-22")
	require.True(t, ok)
}

func TestLoadResumesCounting(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()
	cfg := models.MonitorConfig{ID: 5}
	ts := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	day := models.DayOf(ts)

	a.Load(day, []models.DailyStat{{
		ConfigID: 5, TotalCalls: 10, SuccessCount: 9,
		SumResponse: 4.5, MinResponse: 0.1, MaxResponse: 1.2,
	}})
	a.Observe(ctx, cfg, result(5, ts, true, 0.05))

	stat, ok := a.Snapshot(5, day)
	require.True(t, ok)
	require.Equal(t, 11, stat.TotalCalls)
	require.Equal(t, 10, stat.SuccessCount)
	require.InDelta(t, 0.05, stat.MinResponse, 1e-9)
	require.InDelta(t, 1.2, stat.MaxResponse, 1e-9)

	all := a.Day(day)
	require.Len(t, all, 1)
	require.Equal(t, int64(5), all[0].ConfigID)
}

func TestAgreesWithStoredAggregates(t *testing.T) {
	sqldb, err := db.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	require.NoError(t, db.Migrate(sqldb))
	repo := db.NewRepository(sqldb)

	ctx := context.Background()
	cfg := models.MonitorConfig{Name: "api", URL: "https://api.example.com", Method: "GET",
		IntervalSeconds: 60, CallsPerBatch: 1, TimeoutSeconds: 5, AlertThreshold: 1, IsActive: true}
	require.NoError(t, repo.CreateConfig(ctx, &cfg))

	a := testAggregator()
	ts := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	fixtures := []models.ProbeResult{
		result(cfg.ID, ts, true, 0.25),
		result(cfg.ID, ts.Add(time.Minute), false, 5.0),
		result(cfg.ID, ts.Add(2*time.Minute), true, 0.75),
		result(cfg.ID, ts.Add(3*time.Minute), true, 0.5),
	}
	for _, res := range fixtures {
		require.NoError(t, repo.InsertResult(ctx, res))
		a.Observe(ctx, cfg, res)
	}

	stored, err := repo.DailyStatFor(ctx, cfg.ID, ts)
	require.NoError(t, err)
	live, ok := a.Snapshot(cfg.ID, models.DayOf(ts))
	require.True(t, ok)
	require.Equal(t, stored, live)
}
