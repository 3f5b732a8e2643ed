package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InventoryMetrics tracks ledger writes, lock waits and replay drift.
type InventoryMetrics struct {
	movements  *prometheus.CounterVec
	contention prometheus.Counter
	lockWait   prometheus.Histogram
	drift      *prometheus.GaugeVec
}

// NewInventoryMetrics registers the inventory metrics on reg.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_movements_total",
		Help:      "Stock movements appended to the ledger by reason.",
	}, []string{"reason"})
	contention := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_lock_contention_total",
		Help:      "Product lock acquisitions that timed out.",
	})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "inventory_lock_wait_seconds",
		Help:      "Time spent waiting for product locks.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	})
	drift := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ledger_drift_units",
		Help:      "Difference between stored stock and replayed movements per product.",
	}, []string{"product_id"})
	reg.MustRegister(movements, contention, lockWait, drift)
	return &InventoryMetrics{movements: movements, contention: contention, lockWait: lockWait, drift: drift}
}

// IncMovement counts one appended movement.
func (m *InventoryMetrics) IncMovement(reason string) {
	if m == nil || m.movements == nil {
		return
	}
	m.movements.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveLockWait records how long a lock acquisition took and whether it timed out.
func (m *InventoryMetrics) ObserveLockWait(wait time.Duration, timedOut bool) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Observe(wait.Seconds())
	if timedOut {
		m.contention.Inc()
	}
}

// SetDrift publishes the replay drift for a product. Zero drift removes the series.
func (m *InventoryMetrics) SetDrift(productID string, drift int) {
	if m == nil || m.drift == nil {
		return
	}
	if drift == 0 {
		m.drift.DeleteLabelValues(productID)
		return
	}
	m.drift.WithLabelValues(productID).Set(float64(drift))
}
