package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iyuangang/webservice-monitor/internal/db"
	"github.com/iyuangang/webservice-monitor/internal/hub"
	"github.com/iyuangang/webservice-monitor/internal/metrics"
	"github.com/iyuangang/webservice-monitor/internal/models"
	"github.com/iyuangang/webservice-monitor/internal/notifier"
	"github.com/iyuangang/webservice-monitor/internal/stats"
)

// Engine turns evaluation events into alert transitions. Each (config, type)
// pair holds at most one unresolved alert; transitions for a pair are
// serialized so concurrent batches cannot double-open or double-resolve.
type Engine struct {
	repo    *db.Repository
	notify  *notifier.Webhook
	events  *hub.Hub
	log     *slog.Logger
	now     func() time.Time
	minRate float64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(repo *db.Repository, minRate float64, notify *notifier.Webhook, events *hub.Hub, logger *slog.Logger) *Engine {
	return &Engine{
		repo:    repo,
		notify:  notify,
		events:  events,
		log:     logger.With("module", "alerts"),
		now:     time.Now,
		minRate: minRate,
		locks:   map[string]*sync.Mutex{},
	}
}

// Evaluate inspects one folded-in result. Availability tracks the day's
// rolling success rate; performance tracks the most recent successful call's
// response time against the config threshold. Failed calls leave the
// performance track untouched.
func (e *Engine) Evaluate(ctx context.Context, ev stats.Evaluation) {
	e.evalAvailability(ctx, ev)
	e.evalPerformance(ctx, ev)
}

func (e *Engine) evalAvailability(ctx context.Context, ev stats.Evaluation) {
	stat := ev.Stat
	if stat.TotalCalls == 0 {
		return
	}
	rate := stat.SuccessRate()
	if rate < e.minRate {
		msg := fmt.Sprintf("success rate %.1f%% below minimum %.1f%% (%d/%d calls)",
			rate*100, e.minRate*100, stat.SuccessCount, stat.TotalCalls)
		e.open(ctx, ev.Config, models.AlertAvailability, msg)
		return
	}
	e.resolve(ctx, ev.Config, models.AlertAvailability)
}

func (e *Engine) evalPerformance(ctx context.Context, ev stats.Evaluation) {
	res := ev.Result
	if !res.Success {
		return
	}
	if res.ResponseTime > ev.Config.AlertThreshold {
		msg := fmt.Sprintf("response time %.3fs above threshold %.2fs", res.ResponseTime, ev.Config.AlertThreshold)
		e.open(ctx, ev.Config, models.AlertPerformance, msg)
		return
	}
	e.resolve(ctx, ev.Config, models.AlertPerformance)
}

func (e *Engine) open(ctx context.Context, cfg models.MonitorConfig, typ models.AlertType, msg string) {
	lock := e.lockFor(cfg.ID, typ)
	lock.Lock()
	defer lock.Unlock()

	a := models.Alert{ConfigID: cfg.ID, Type: typ, OpenedAt: e.now().UTC(), Message: msg}
	created, err := e.repo.OpenAlert(ctx, &a)
	if err != nil {
		metrics.PersistErrors.Inc()
		e.log.Error("open alert", "err", err, "config", cfg.Name, "type", typ)
		return
	}
	if !created {
		return
	}
	metrics.AlertsOpened.WithLabelValues(string(typ)).Inc()
	e.log.Warn("alert opened", "config", cfg.Name, "type", typ, "message", msg)
	if e.events != nil {
		e.events.Broadcast(hub.Event{Type: "alert.opened", ConfigID: cfg.ID, Payload: a})
	}
	e.sendNotification("opened", cfg.Name, a)
}

func (e *Engine) resolve(ctx context.Context, cfg models.MonitorConfig, typ models.AlertType) {
	lock := e.lockFor(cfg.ID, typ)
	lock.Lock()
	defer lock.Unlock()

	a, err := e.repo.UnresolvedAlert(ctx, cfg.ID, typ)
	if errors.Is(err, db.ErrNotFound) {
		return
	}
	if err != nil {
		metrics.PersistErrors.Inc()
		e.log.Error("load alert", "err", err, "config", cfg.Name, "type", typ)
		return
	}
	at := e.now().UTC()
	if at.Before(a.OpenedAt) {
		at = a.OpenedAt
	}
	ok, err := e.repo.ResolveAlert(ctx, a.ID, at)
	if err != nil {
		metrics.PersistErrors.Inc()
		e.log.Error("resolve alert", "err", err, "config", cfg.Name, "type", typ)
		return
	}
	if !ok {
		return
	}
	a.Resolved = true
	a.ResolvedAt = &at
	metrics.AlertsResolved.WithLabelValues(string(typ)).Inc()
	e.log.Info("alert resolved", "config", cfg.Name, "type", typ, "open_for", at.Sub(a.OpenedAt).String())
	if e.events != nil {
		e.events.Broadcast(hub.Event{Type: "alert.resolved", ConfigID: cfg.ID, Payload: a})
	}
	e.sendNotification("resolved", cfg.Name, a)
}

func (e *Engine) sendNotification(event, configName string, a models.Alert) {
	if e.notify == nil || !e.notify.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		var err error
		for attempts := 1; attempts <= 3; attempts++ {
			err = e.notify.Send(ctx, event, configName, a)
			if err == nil {
				return
			}
			time.Sleep(time.Duration(attempts) * 300 * time.Millisecond)
		}
		e.log.Warn("notify failed", "err", err, "config", configName, "event", event)
	}()
}

func (e *Engine) lockFor(configID int64, typ models.AlertType) *sync.Mutex {
	key := fmt.Sprintf("%d/%s", configID, typ)
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	return lock
}
