package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/iyuangang/webservice-monitor/internal/alerts"
	"github.com/iyuangang/webservice-monitor/internal/config"
	"github.com/iyuangang/webservice-monitor/internal/db"
	"github.com/iyuangang/webservice-monitor/internal/hub"
	"github.com/iyuangang/webservice-monitor/internal/metrics"
	"github.com/iyuangang/webservice-monitor/internal/models"
	"github.com/iyuangang/webservice-monitor/internal/notifier"
	"github.com/iyuangang/webservice-monitor/internal/probe"
	"github.com/iyuangang/webservice-monitor/internal/report"
	"github.com/iyuangang/webservice-monitor/internal/retention"
	"github.com/iyuangang/webservice-monitor/internal/schedule"
	"github.com/iyuangang/webservice-monitor/internal/stats"
	"github.com/iyuangang/webservice-monitor/internal/web"
)

// Engine owns the full monitoring pipeline: scheduler, probe workers,
// aggregation, alerting, retention, reports and the HTTP API.
type Engine struct {
	cfg config.Settings
	log *slog.Logger

	conn *sql.DB
	repo *db.Repository

	events    *hub.Hub
	agg       *stats.Aggregator
	alerts    *alerts.Engine
	sched     *schedule.Scheduler
	retention *retention.Service
	reports   *report.Generator
	notify    *notifier.Webhook
	web       *web.Server

	httpSrv *http.Server
	cron    *cron.Cron

	runID     string
	pid       int
	startedAt time.Time

	// only restricts scheduling to the given config ids when non-empty.
	only map[int64]bool

	mu       sync.Mutex
	lastTick time.Time

	// OnStatus, when set, receives every status snapshot the engine
	// publishes. The daemon uses it to keep the status file current.
	OnStatus func(models.EngineStatus)
}

func New(cfg config.Settings, only []int64, logger *slog.Logger) (*Engine, error) {
	sqldb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(sqldb); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	repo := db.NewRepository(sqldb)

	events := hub.New(logger)
	notify := notifier.NewWebhook(cfg.WebhookURL)
	agg := stats.NewAggregator(logger)
	alertEngine := alerts.NewEngine(repo, cfg.AvailabilityMin, notify, events, logger)
	agg.OnEvaluation = alertEngine.Evaluate

	sched := schedule.New(probe.New(), repo, cfg.Workers, cfg.QueueSize, logger)
	sched.OnResult = func(ctx context.Context, c models.MonitorConfig, res models.ProbeResult) {
		agg.Observe(ctx, c, res)
		events.Broadcast(hub.Event{Type: "probe.result", ConfigID: c.ID, TS: res.TS, Payload: res})
	}

	e := &Engine{
		cfg:       cfg,
		log:       logger,
		conn:      sqldb,
		repo:      repo,
		events:    events,
		agg:       agg,
		alerts:    alertEngine,
		sched:     sched,
		retention: retention.NewService(repo, cfg.RetentionDays, cfg.PurgeResolvedAlerts, logger),
		reports:   report.NewGenerator(repo, cfg.ReportDir, logger),
		notify:    notify,
		runID:     uuid.NewString(),
		pid:       os.Getpid(),
	}
	if len(only) > 0 {
		e.only = make(map[int64]bool, len(only))
		for _, id := range only {
			e.only[id] = true
		}
	}

	e.web = web.NewServer(repo, e, events, logger)
	e.httpSrv = &http.Server{Addr: cfg.Addr, Handler: e.web.Routes()}

	e.cron = cron.New()
	if _, err := e.cron.AddFunc(cfg.RetentionSchedule, func() {
		e.retention.Run(context.Background())
	}); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("retention schedule %q: %w", cfg.RetentionSchedule, err)
	}
	if cfg.DailyReport {
		if _, err := e.cron.AddFunc(cfg.ReportSchedule, func() {
			e.reports.Run(context.Background())
		}); err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("report schedule %q: %w", cfg.ReportSchedule, err)
		}
	}
	return e, nil
}

// Run drives the engine until ctx is cancelled, then shuts down in order:
// stop accepting HTTP, stop cron, let in-flight probes finish, close the
// database.
func (e *Engine) Run(ctx context.Context) error {
	e.startedAt = time.Now().UTC()

	go e.events.Run(ctx)
	e.sched.Start()
	e.cron.Start()

	go func() {
		e.log.Info("http server listening", "addr", e.cfg.Addr)
		if err := e.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.log.Error("http server failed", "err", err)
		}
	}()

	if _, err := e.Reload(ctx); err != nil {
		e.log.Error("initial config load failed", "err", err)
	}
	e.rehydrate(ctx)
	e.publishStatus(ctx)

	tick := time.NewTicker(e.cfg.Tick())
	statusTick := time.NewTicker(e.cfg.StatusRefresh())
	defer tick.Stop()
	defer statusTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.shutdown()
		case <-tick.C:
			e.sched.Tick(ctx)
			e.mu.Lock()
			e.lastTick = time.Now().UTC()
			e.mu.Unlock()
		case <-statusTick.C:
			e.agg.Forget(models.DayOf(time.Now().UTC()))
			e.publishStatus(ctx)
		}
	}
}

func (e *Engine) shutdown() error {
	e.log.Info("engine shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = e.httpSrv.Shutdown(shCtx)
	cancel()
	<-e.cron.Stop().Done()
	e.sched.Stop()
	e.log.Info("engine stopped", "run_id", e.runID)
	return e.conn.Close()
}

// Reload re-reads active configurations from storage and reconciles the
// scheduler against them. New and changed configs become due immediately.
func (e *Engine) Reload(ctx context.Context) (models.ReloadSummary, error) {
	configs, err := e.repo.ListConfigs(ctx, true)
	if err != nil {
		return models.ReloadSummary{}, fmt.Errorf("load configs: %w", err)
	}
	if e.only != nil {
		kept := make([]models.MonitorConfig, 0, len(configs))
		for _, c := range configs {
			if e.only[c.ID] {
				kept = append(kept, c)
			}
		}
		configs = kept
	}
	summary := e.sched.Reconcile(configs)
	e.log.Info("configuration reloaded",
		"added", summary.Added,
		"updated", summary.Updated,
		"removed", summary.Removed,
		"invalid", summary.Invalid,
	)
	e.events.Broadcast(hub.Event{Type: "engine.reload", Payload: summary})
	return summary, nil
}

// Status reports a live snapshot of the running engine.
func (e *Engine) Status(ctx context.Context) models.EngineStatus {
	ids, inflight := e.sched.Snapshot()
	unresolved, err := e.repo.UnresolvedAlertCount(ctx)
	if err != nil {
		e.log.Warn("count unresolved alerts", "err", err)
	}
	e.mu.Lock()
	last := e.lastTick
	e.mu.Unlock()
	return models.EngineStatus{
		Running:          true,
		PID:              e.pid,
		RunID:            e.runID,
		StartedAt:        e.startedAt,
		LastTick:         last,
		ActiveConfigs:    ids,
		InflightProbes:   inflight,
		Degraded:         e.sched.Degraded(),
		UnresolvedAlerts: unresolved,
		UpdatedAt:        time.Now().UTC(),
	}
}

// ResolveAlert closes an alert by hand, keeping the resolution timestamp at
// or after the opening one.
func (e *Engine) ResolveAlert(ctx context.Context, id int64) (models.Alert, bool, error) {
	alert, err := e.repo.GetAlert(ctx, id)
	if err != nil {
		return models.Alert{}, false, err
	}
	at := time.Now().UTC()
	if at.Before(alert.OpenedAt) {
		at = alert.OpenedAt
	}
	resolved, err := e.repo.ResolveAlert(ctx, id, at)
	if err != nil {
		return models.Alert{}, false, err
	}
	if resolved {
		metrics.AlertsResolved.WithLabelValues(string(alert.Type)).Inc()
		e.log.Info("alert resolved manually", "alert_id", id, "config_id", alert.ConfigID, "type", alert.Type)
	}
	alert, err = e.repo.GetAlert(ctx, id)
	if err != nil {
		return models.Alert{}, false, err
	}
	if resolved {
		e.events.Broadcast(hub.Event{Type: "alert.resolved", ConfigID: alert.ConfigID, Payload: alert})
	}
	return alert, resolved, nil
}

// rehydrate reloads today's aggregates so availability windows survive a
// restart instead of starting from an empty bucket.
func (e *Engine) rehydrate(ctx context.Context) {
	now := time.Now().UTC()
	loaded, err := e.repo.DailyStats(ctx, now)
	if err != nil {
		e.log.Warn("rehydrate stats", "err", err)
		return
	}
	e.agg.Load(models.DayOf(now), loaded)
	e.log.Info("stats rehydrated", "day", models.DayOf(now), "configs", len(loaded))
}

func (e *Engine) publishStatus(ctx context.Context) {
	st := e.Status(ctx)
	if e.OnStatus != nil {
		e.OnStatus(st)
	}
	e.events.Broadcast(hub.Event{Type: "engine.status", Payload: st})
}
