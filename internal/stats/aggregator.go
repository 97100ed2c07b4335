package stats

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/iyuangang/webservice-monitor/internal/models"
)

// Evaluation carries one folded-in probe result together with the day
// aggregate that now includes it. Alert evaluation consumes these.
type Evaluation struct {
	Config models.MonitorConfig
	Result models.ProbeResult
	Stat   models.DailyStat
}

// Aggregator keeps per-config, per-UTC-day running aggregates in memory.
// Response-time sums and extremes cover successful calls only; totals count
// every attempt. It is safe for concurrent Observe calls.
type Aggregator struct {
	mu   sync.Mutex
	days map[string]map[int64]*models.DailyStat
	log  *slog.Logger

	// OnEvaluation, when set, fires after each Observe with a snapshot of
	// the updated aggregate. It runs outside the aggregator lock.
	OnEvaluation func(context.Context, Evaluation)
}

func NewAggregator(log *slog.Logger) *Aggregator {
	return &Aggregator{
		days: make(map[string]map[int64]*models.DailyStat),
		log:  log.With("module", "stats"),
	}
}

// Observe folds one result into its day bucket and emits an Evaluation.
func (a *Aggregator) Observe(ctx context.Context, cfg models.MonitorConfig, res models.ProbeResult) {
	day := models.DayOf(res.TS)

	a.mu.Lock()
	bucket, ok := a.days[day]
	if !ok {
		bucket = make(map[int64]*models.DailyStat)
		a.days[day] = bucket
	}
	stat, ok := bucket[res.ConfigID]
	if !ok {
		stat = &models.DailyStat{ConfigID: res.ConfigID, Day: day}
		bucket[res.ConfigID] = stat
	}
	stat.TotalCalls++
	if res.Success {
		stat.SuccessCount++
		stat.SumResponse += res.ResponseTime
		if stat.SuccessCount == 1 || res.ResponseTime < stat.MinResponse {
			stat.MinResponse = res.ResponseTime
		}
		if res.ResponseTime > stat.MaxResponse {
			stat.MaxResponse = res.ResponseTime
		}
	}
	snapshot := *stat
	a.mu.Unlock()

	if a.OnEvaluation != nil {
		a.OnEvaluation(ctx, Evaluation{Config: cfg, Result: res, Stat: snapshot})
	}
}

// Load seeds a day bucket from persisted aggregates, used when the engine
// restarts partway through a day.
func (a *Aggregator) Load(day string, stats []models.DailyStat) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bucket := make(map[int64]*models.DailyStat, len(stats))
	for _, s := range stats {
		s.Day = day
		bucket[s.ConfigID] = &s
	}
	a.days[day] = bucket
	a.log.Debug("stats rehydrated", "day", day, "configs", len(stats))
}

// Snapshot returns the aggregate for one config on one day.
func (a *Aggregator) Snapshot(configID int64, day string) (models.DailyStat, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bucket, ok := a.days[day]
	if !ok {
		return models.DailyStat{ConfigID: configID, Day: day}, false
	}
	stat, ok := bucket[configID]
	if !ok {
		return models.DailyStat{ConfigID: configID, Day: day}, false
	}
	return *stat, true
}

// Day returns all aggregates for one day ordered by config id.
func (a *Aggregator) Day(day string) []models.DailyStat {
	a.mu.Lock()
	defer a.mu.Unlock()
	bucket := a.days[day]
	out := make([]models.DailyStat, 0, len(bucket))
	for _, stat := range bucket {
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConfigID < out[j].ConfigID })
	return out
}

// Forget drops in-memory buckets for days before the given one. The durable
// copy in probe_results is unaffected.
func (a *Aggregator) Forget(before string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for day := range a.days {
		if day < before {
			delete(a.days, day)
		}
	}
}
