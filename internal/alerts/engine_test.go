package alerts

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/iyuangang/webservice-monitor/internal/db"
	"github.com/iyuangang/webservice-monitor/internal/models"
	"github.com/iyuangang/webservice-monitor/internal/stats"
)

func newTestEngine(t *testing.T, minRate float64) (*Engine, *db.Repository, models.MonitorConfig) {
	t.Helper()
	sqldb, err := db.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	if err := db.Migrate(sqldb); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	repo := db.NewRepository(sqldb)

	cfg := models.MonitorConfig{
		Name: "api", URL: "https://api.example.com/health", Method: "GET",
		IntervalSeconds: 60, CallsPerBatch: 3, TimeoutSeconds: 5, AlertThreshold: 1.0, IsActive: true,
	}
	if err := repo.CreateConfig(context.Background(), &cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	engine := NewEngine(repo, minRate, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	engine.now = func() time.Time { return time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC) }
	return engine, repo, cfg
}

func evalFor(cfg models.MonitorConfig, success bool, rt float64, total, succ int) stats.Evaluation {
	reason := models.FailureNone
	if !success {
		reason = models.FailureHTTP
	}
	return stats.Evaluation{
		Config: cfg,
		Result: models.ProbeResult{ConfigID: cfg.ID, TS: time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC), Success: success, ResponseTime: rt, Reason: reason},
		Stat:   models.DailyStat{ConfigID: cfg.ID, Day: "2026-02-21", TotalCalls: total, SuccessCount: succ},
	}
}

func countByType(t *testing.T, repo *db.Repository, cfgID int64, typ models.AlertType, unresolvedOnly bool) int {
	t.Helper()
	alerts, err := repo.ListAlerts(context.Background(), cfgID, !unresolvedOnly, 100)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	n := 0
	for _, a := range alerts {
		if a.Type == typ {
			n++
		}
	}
	return n
}

func TestSlowSuccessOpensOnePerformanceAlert(t *testing.T) {
	engine, repo, cfg := newTestEngine(t, 0.5)
	ctx := context.Background()

	engine.Evaluate(ctx, evalFor(cfg, true, 1.5, 1, 1))
	if got := countByType(t, repo, cfg.ID, models.AlertPerformance, true); got != 1 {
		t.Fatalf("performance alerts = %d, want 1", got)
	}

	// Another slow call while the alert is open must not create a second one.
	engine.Evaluate(ctx, evalFor(cfg, true, 2.0, 2, 2))
	if got := countByType(t, repo, cfg.ID, models.AlertPerformance, false); got != 1 {
		t.Fatalf("performance alerts after repeat = %d, want 1", got)
	}
}

func TestFastSuccessResolvesPerformanceAlert(t *testing.T) {
	engine, repo, cfg := newTestEngine(t, 0.5)
	ctx := context.Background()
	opened := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return opened }

	engine.Evaluate(ctx, evalFor(cfg, true, 1.5, 1, 1))

	resolvedAt := opened.Add(2 * time.Minute)
	engine.now = func() time.Time { return resolvedAt }
	engine.Evaluate(ctx, evalFor(cfg, true, 0.3, 2, 2))

	alerts, err := repo.ListAlerts(ctx, cfg.ID, true, 10)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if !a.Resolved || a.ResolvedAt == nil {
		t.Fatalf("alert not resolved: %+v", a)
	}
	if !a.ResolvedAt.Equal(resolvedAt) {
		t.Fatalf("resolved_at = %v, want %v", a.ResolvedAt, resolvedAt)
	}
	if a.ResolvedAt.Before(a.OpenedAt) {
		t.Fatalf("resolved before opened: %+v", a)
	}
}

func TestFailureLeavesPerformanceTrackAlone(t *testing.T) {
	engine, repo, cfg := newTestEngine(t, 0.1)
	ctx := context.Background()

	// No open alert: a failed call must not open a performance alert even
	// with a huge measured duration.
	engine.Evaluate(ctx, evalFor(cfg, false, 9.9, 1, 0))
	if got := countByType(t, repo, cfg.ID, models.AlertPerformance, false); got != 0 {
		t.Fatalf("failure opened a performance alert")
	}

	// Open one, then fail fast: the failure must not resolve it either.
	engine.Evaluate(ctx, evalFor(cfg, true, 1.5, 2, 1))
	engine.Evaluate(ctx, evalFor(cfg, false, 0.0, 3, 1))
	if got := countByType(t, repo, cfg.ID, models.AlertPerformance, true); got != 1 {
		t.Fatalf("failure resolved the performance alert")
	}
}

func TestLowSuccessRateOpensAvailabilityAlert(t *testing.T) {
	engine, repo, cfg := newTestEngine(t, 0.9)
	ctx := context.Background()

	engine.Evaluate(ctx, evalFor(cfg, false, 0.0, 10, 5))
	if got := countByType(t, repo, cfg.ID, models.AlertAvailability, true); got != 1 {
		t.Fatalf("availability alerts = %d, want 1", got)
	}

	// Rate recovers above the minimum: the alert resolves.
	engine.Evaluate(ctx, evalFor(cfg, true, 0.2, 100, 95))
	if got := countByType(t, repo, cfg.ID, models.AlertAvailability, true); got != 0 {
		t.Fatalf("availability alert still open after recovery")
	}
	if got := countByType(t, repo, cfg.ID, models.AlertAvailability, false); got != 1 {
		t.Fatalf("resolved availability alert missing from history")
	}
}

func TestNoDataNeverAlerts(t *testing.T) {
	engine, repo, cfg := newTestEngine(t, 0.9)

	ev := evalFor(cfg, true, 0.2, 0, 0)
	engine.Evaluate(context.Background(), ev)
	if got := countByType(t, repo, cfg.ID, models.AlertAvailability, false); got != 0 {
		t.Fatalf("zero-call day opened an availability alert")
	}
}

func TestResolutionNeverPredatesOpen(t *testing.T) {
	engine, repo, cfg := newTestEngine(t, 0.5)
	ctx := context.Background()
	opened := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return opened }
	engine.Evaluate(ctx, evalFor(cfg, true, 1.5, 1, 1))

	// A clock stepping backwards must not produce resolved_at < opened_at.
	engine.now = func() time.Time { return opened.Add(-time.Hour) }
	engine.Evaluate(ctx, evalFor(cfg, true, 0.1, 2, 2))

	alerts, err := repo.ListAlerts(ctx, cfg.ID, true, 10)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 || !alerts[0].Resolved {
		t.Fatalf("alert not resolved: %+v", alerts)
	}
	if !alerts[0].ResolvedAt.Equal(alerts[0].OpenedAt) {
		t.Fatalf("resolved_at = %v, want clamped to opened_at %v", alerts[0].ResolvedAt, alerts[0].OpenedAt)
	}
}

// A batch of 0.2s ok, 1.5s ok and one http failure against a 1.0s threshold
// and a 50% minimum rate: the slow second call opens a performance alert, and
// with 2 of 3 calls succeeding availability stays quiet.
func TestMixedBatchScenario(t *testing.T) {
	engine, repo, cfg := newTestEngine(t, 0.5)
	ctx := context.Background()

	agg := stats.NewAggregator(slog.New(slog.NewTextHandler(io.Discard, nil)))
	agg.OnEvaluation = engine.Evaluate

	ts := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	code := 200
	bad := 500
	agg.Observe(ctx, cfg, models.ProbeResult{ConfigID: cfg.ID, TS: ts, Success: true, StatusCode: &code, ResponseTime: 0.2, Reason: models.FailureNone})
	agg.Observe(ctx, cfg, models.ProbeResult{ConfigID: cfg.ID, TS: ts.Add(time.Second), Success: true, StatusCode: &code, ResponseTime: 1.5, Reason: models.FailureNone})
	agg.Observe(ctx, cfg, models.ProbeResult{ConfigID: cfg.ID, TS: ts.Add(2 * time.Second), Success: false, StatusCode: &bad, ResponseTime: 0.3, Reason: models.FailureHTTP})

	if got := countByType(t, repo, cfg.ID, models.AlertPerformance, true); got != 1 {
		t.Fatalf("performance alerts = %d, want 1", got)
	}
	if got := countByType(t, repo, cfg.ID, models.AlertAvailability, false); got != 0 {
		t.Fatalf("availability alerts = %d, want 0 (rate 66.7%% is above the 50%% floor)", got)
	}
}
