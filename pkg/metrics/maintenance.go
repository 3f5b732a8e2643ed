package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MaintenanceMetrics records the cron worker's passes and per-job results.
type MaintenanceMetrics struct {
	runs    *prometheus.CounterVec
	elapsed *prometheus.HistogramVec
	skipped prometheus.Counter
}

func NewMaintenanceMetrics(reg prometheus.Registerer) *MaintenanceMetrics {
	if reg == nil {
		return &MaintenanceMetrics{}
	}
	m := &MaintenanceMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "job_runs_total",
			Help:      "Maintenance job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		elapsed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "job_seconds",
			Help:      "Wall time of maintenance jobs.",
			Buckets:   []float64{.01, .05, .25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "passes_skipped_total",
			Help:      "Passes skipped because another worker held the lease.",
		}),
	}
	reg.MustRegister(m.runs, m.elapsed, m.skipped)
	return m
}

// ObserveJob records one job run; a non-nil err counts as a failure.
func (m *MaintenanceMetrics) ObserveJob(job string, elapsed time.Duration, err error) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.runs.WithLabelValues(job, outcomeOf(err)).Inc()
	m.elapsed.WithLabelValues(job).Observe(elapsed.Seconds())
}

func (m *MaintenanceMetrics) IncSkipped() {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.Inc()
}
