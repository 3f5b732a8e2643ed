package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout outcome labels.
const (
	OutcomeSuccess           = "success"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeContention        = "contention"
	OutcomeError             = "error"
)

// CheckoutMetrics tracks cart-to-order conversions.
type CheckoutMetrics struct {
	outcomes *prometheus.CounterVec
	retries  prometheus.Counter
	duration prometheus.Histogram
}

// NewCheckoutMetrics registers the checkout metrics on reg. A nil registerer
// yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_total",
		Help:      "Checkout attempts by final outcome.",
	}, []string{"outcome"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_retries_total",
		Help:      "Checkout attempts retried after contention.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "checkout_duration_seconds",
		Help:      "Wall time of checkout including retries.",
		Buckets:   prometheus.DefBuckets,
	})
	reg.MustRegister(outcomes, retries, duration)
	return &CheckoutMetrics{outcomes: outcomes, retries: retries, duration: duration}
}

// Observe records a finished checkout.
func (m *CheckoutMetrics) Observe(outcome string, elapsed time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// IncRetry counts one contention retry.
func (m *CheckoutMetrics) IncRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}
