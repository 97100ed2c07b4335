package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ProbesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webmon_probes_total",
		Help: "Probe attempts by config name and outcome.",
	}, []string{"config", "outcome"})

	ProbeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webmon_probe_duration_seconds",
		Help:    "End-to-end probe duration.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"config"})

	AlertsOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webmon_alerts_opened_total",
		Help: "Alerts opened by type.",
	}, []string{"type"})

	AlertsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webmon_alerts_resolved_total",
		Help: "Alerts resolved by type.",
	}, []string{"type"})

	ActiveConfigs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "webmon_active_configs",
		Help: "Configs currently scheduled.",
	})

	InflightProbes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "webmon_inflight_probes",
		Help: "Batches currently executing.",
	})

	SchedulerTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webmon_scheduler_ticks_total",
		Help: "Scheduler ticks processed.",
	})

	PersistErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webmon_persist_errors_total",
		Help: "Failed writes of probe results or alerts.",
	})

	DroppedDispatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webmon_dropped_dispatches_total",
		Help: "Probe tasks dropped because the work queue was full.",
	})
)

func init() {
	prometheus.MustRegister(
		ProbesTotal,
		ProbeDuration,
		AlertsOpened,
		AlertsResolved,
		ActiveConfigs,
		InflightProbes,
		SchedulerTicks,
		PersistErrors,
		DroppedDispatches,
	)
}
