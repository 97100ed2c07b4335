package schedule

import (
	"context"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/iyuangang/webservice-monitor/internal/db"
	"github.com/iyuangang/webservice-monitor/internal/metrics"
	"github.com/iyuangang/webservice-monitor/internal/models"
)

const persistFailLimit = 3

// Prober runs a single probe attempt. The production implementation lives in
// the probe package; tests substitute their own.
type Prober interface {
	Probe(ctx context.Context, cfg models.MonitorConfig) models.ProbeResult
}

type entry struct {
	cfg      models.MonitorConfig
	windows  models.WindowSet
	nextDue  time.Time
	inflight bool
}

// batch tracks the attempts of one dispatch. The last attempt to finish
// clears the config's in-flight guard.
type batch struct {
	id       string
	configID int64
	sched    *Scheduler
	left     atomic.Int32
}

func (b *batch) done() {
	if b.left.Add(-1) == 0 {
		b.sched.clearInflight(b.configID)
		metrics.InflightProbes.Dec()
	}
}

type task struct {
	cfg   models.MonitorConfig
	batch *batch
}

// Scheduler owns the due-time bookkeeping for every active config and feeds a
// bounded worker pool. Tick never blocks on I/O: due batches go to a buffered
// queue and are dropped, with accounting, when it is full.
type Scheduler struct {
	prober Prober
	repo   *db.Repository
	log    *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[int64]*entry

	queue   chan task
	wg      sync.WaitGroup
	workers int

	failMu     sync.Mutex
	failStreak int
	degraded   bool

	// OnResult fires for every completed attempt, after the result has been
	// persisted (or the persistence failure noted). The engine points this
	// at the stats aggregator.
	OnResult func(ctx context.Context, cfg models.MonitorConfig, res models.ProbeResult)
}

func New(prober Prober, repo *db.Repository, workers, queueSize int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		prober:  prober,
		repo:    repo,
		log:     logger.With("module", "schedule"),
		now:     time.Now,
		entries: make(map[int64]*entry),
		queue:   make(chan task, queueSize),
		workers: workers,
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Stop closes the queue and waits for queued and in-flight attempts to
// finish. It must not race Tick; the engine loop serializes them.
func (s *Scheduler) Stop() {
	close(s.queue)
	s.wg.Wait()
}

// Tick dispatches every due config and reports how many batches went out.
// Out-of-window and in-flight configs are passed over without touching their
// due time, so a config becomes due the moment its window reopens and a
// slow batch is never stacked on.
func (s *Scheduler) Tick(ctx context.Context) int {
	metrics.SchedulerTicks.Inc()
	now := s.now()

	var due []models.MonitorConfig
	s.mu.Lock()
	for _, en := range s.entries {
		if !en.windows.Contains(now) {
			continue
		}
		if en.nextDue.After(now) {
			continue
		}
		if en.inflight {
			continue
		}
		en.inflight = true
		en.nextDue = now.Add(en.cfg.Interval())
		due = append(due, en.cfg)
	}
	s.mu.Unlock()

	for _, cfg := range due {
		s.dispatch(cfg)
	}
	return len(due)
}

func (s *Scheduler) dispatch(cfg models.MonitorConfig) {
	b := &batch{id: uuid.NewString(), configID: cfg.ID, sched: s}
	b.left.Store(int32(cfg.CallsPerBatch))
	metrics.InflightProbes.Inc()
	s.log.Debug("batch dispatched", "config", cfg.Name, "batch", b.id, "calls", cfg.CallsPerBatch)

	for i := 0; i < cfg.CallsPerBatch; i++ {
		select {
		case s.queue <- task{cfg: cfg, batch: b}:
		default:
			metrics.DroppedDispatches.Inc()
			s.log.Warn("probe dropped, queue full", "config", cfg.Name, "batch", b.id)
			b.done()
		}
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for tk := range s.queue {
		s.run(tk)
	}
}

func (s *Scheduler) run(tk task) {
	defer tk.batch.done()

	// Probes run against a fresh context so an engine shutdown lets the
	// attempt complete instead of cancelling it mid-request.
	ctx := context.Background()
	res := s.prober.Probe(ctx, tk.cfg)

	outcome := string(res.Reason)
	if res.Success {
		outcome = "success"
	}
	metrics.ProbesTotal.WithLabelValues(tk.cfg.Name, outcome).Inc()
	metrics.ProbeDuration.WithLabelValues(tk.cfg.Name).Observe(res.ResponseTime)

	if err := s.repo.InsertResult(ctx, res); err != nil {
		metrics.PersistErrors.Inc()
		s.notePersistError(err, tk.cfg.Name)
	} else {
		s.notePersistOK()
	}

	if s.OnResult != nil {
		s.OnResult(ctx, tk.cfg, res)
	}
}

// Reconcile replaces the schedule with the given config set. Inactive or
// absent configs drop out, new and changed ones become due immediately, and
// a config that turned invalid keeps its previous working definition.
func (s *Scheduler) Reconcile(cfgs []models.MonitorConfig) models.ReloadSummary {
	now := s.now()
	var sum models.ReloadSummary

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]bool, len(cfgs))
	for _, cfg := range cfgs {
		if !cfg.IsActive {
			continue
		}
		if err := cfg.Validate(); err != nil {
			sum.Invalid++
			if _, ok := s.entries[cfg.ID]; ok {
				seen[cfg.ID] = true
				s.log.Warn("config invalid, keeping previous definition", "config", cfg.Name, "err", err)
			} else {
				s.log.Warn("config invalid, skipped", "config", cfg.Name, "err", err)
			}
			continue
		}
		windows, _ := models.ParseWindows(cfg.MonitoringHours)
		seen[cfg.ID] = true

		en, ok := s.entries[cfg.ID]
		if !ok {
			s.entries[cfg.ID] = &entry{cfg: cfg, windows: windows, nextDue: now}
			sum.Added++
			continue
		}
		if configChanged(en.cfg, cfg) {
			en.cfg = cfg
			en.windows = windows
			en.nextDue = now
			sum.Updated++
		}
	}

	for id := range s.entries {
		if !seen[id] {
			delete(s.entries, id)
			sum.Removed++
		}
	}
	metrics.ActiveConfigs.Set(float64(len(s.entries)))
	return sum
}

// Snapshot returns the scheduled config ids and how many have a batch in
// flight.
func (s *Scheduler) Snapshot() ([]int64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.entries))
	inflight := 0
	for id, en := range s.entries {
		ids = append(ids, id)
		if en.inflight {
			inflight++
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, inflight
}

// Degraded reports whether result persistence has failed repeatedly without
// an intervening success.
func (s *Scheduler) Degraded() bool {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.degraded
}

func (s *Scheduler) clearInflight(id int64) {
	s.mu.Lock()
	if en, ok := s.entries[id]; ok {
		en.inflight = false
	}
	s.mu.Unlock()
}

func (s *Scheduler) notePersistError(err error, config string) {
	s.failMu.Lock()
	s.failStreak++
	if s.failStreak >= persistFailLimit && !s.degraded {
		s.degraded = true
		s.log.Error("storage degraded", "consecutive_failures", s.failStreak)
	}
	s.failMu.Unlock()
	s.log.Error("persist probe result", "err", err, "config", config)
}

func (s *Scheduler) notePersistOK() {
	s.failMu.Lock()
	if s.degraded {
		s.log.Info("storage recovered")
	}
	s.failStreak = 0
	s.degraded = false
	s.failMu.Unlock()
}

func configChanged(a, b models.MonitorConfig) bool {
	a.CreatedAt, a.UpdatedAt = time.Time{}, time.Time{}
	b.CreatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	return !reflect.DeepEqual(a, b)
}
