package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics follows the relay: deliveries per topic, parked rows and the
// undelivered backlog reported by the prune job.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
	parked     *prometheus.CounterVec
	backlog    prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox publish attempts by topic and outcome.",
		}, []string{"topic", "outcome"}),
		parked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "parked_total",
			Help:      "Outbox rows taken out of rotation by event type.",
		}, []string{"event_type"}),
		backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "backlog_rows",
			Help:      "Outbox rows not yet delivered.",
		}),
	}
	reg.MustRegister(m.deliveries, m.parked, m.backlog)
	return m
}

func (m *OutboxMetrics) ObserveDelivery(topic string, err error) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(topic), outcomeOf(err)).Inc()
}

func (m *OutboxMetrics) IncParked(eventType string) {
	if m == nil || m.parked == nil {
		return
	}
	m.parked.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) SetBacklog(rows int64) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(rows))
}
