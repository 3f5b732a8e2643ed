package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// sample returns the series of family name whose labels include want, or nil.
func sample(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	series:
		for _, m := range family.GetMetric() {
			got := map[string]string{}
			for _, pair := range m.GetLabel() {
				got[pair.GetName()] = pair.GetValue()
			}
			for k, v := range want {
				if got[k] != v {
					continue series
				}
			}
			return m
		}
	}
	return nil
}

func counter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	m := sample(t, reg, name, labels)
	if m == nil {
		t.Fatalf("no %s series for %v", name, labels)
	}
	return m.GetCounter().GetValue()
}

func TestMaintenanceMetricsSplitOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMaintenanceMetrics(reg)

	m.ObserveJob("ledger-reconcile", 40*time.Millisecond, nil)
	m.ObserveJob("ledger-reconcile", 10*time.Millisecond, errors.New("drift"))
	m.ObserveJob("", time.Millisecond, nil)
	m.IncSkipped()

	if got := counter(t, reg, "papshop_maintenance_job_runs_total", map[string]string{"job": "ledger-reconcile", "outcome": "ok"}); got != 1 {
		t.Fatalf("ok runs = %v", got)
	}
	if got := counter(t, reg, "papshop_maintenance_job_runs_total", map[string]string{"job": "ledger-reconcile", "outcome": "failed"}); got != 1 {
		t.Fatalf("failed runs = %v", got)
	}
	if got := counter(t, reg, "papshop_maintenance_job_runs_total", map[string]string{"job": "unknown"}); got != 1 {
		t.Fatalf("unnamed job should land on unknown, got %v", got)
	}
	h := sample(t, reg, "papshop_maintenance_job_seconds", map[string]string{"job": "ledger-reconcile"})
	if h == nil || h.GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("expected two timing samples, got %v", h)
	}
	if got := counter(t, reg, "papshop_maintenance_passes_skipped_total", nil); got != 1 {
		t.Fatalf("skipped = %v", got)
	}
}

func TestOutboxMetricsTrackTopicsAndBacklog(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.ObserveDelivery("papshop-orders", nil)
	m.ObserveDelivery("papshop-orders", nil)
	m.ObserveDelivery("papshop-inventory", errors.New("unavailable"))
	m.IncParked("order_created")
	m.SetBacklog(12)
	m.SetBacklog(7)

	if got := counter(t, reg, "papshop_outbox_deliveries_total", map[string]string{"topic": "papshop-orders", "outcome": "ok"}); got != 2 {
		t.Fatalf("orders ok = %v", got)
	}
	if got := counter(t, reg, "papshop_outbox_deliveries_total", map[string]string{"topic": "papshop-inventory", "outcome": "failed"}); got != 1 {
		t.Fatalf("inventory failed = %v", got)
	}
	if got := counter(t, reg, "papshop_outbox_parked_total", map[string]string{"event_type": "order_created"}); got != 1 {
		t.Fatalf("parked = %v", got)
	}
	if g := sample(t, reg, "papshop_outbox_backlog_rows", nil); g == nil || g.GetGauge().GetValue() != 7 {
		t.Fatalf("backlog gauge = %v", g)
	}
}

func TestRecordersWithoutRegistryDoNothing(t *testing.T) {
	NewMaintenanceMetrics(nil).ObserveJob("x", time.Second, nil)
	NewOutboxMetrics(nil).SetBacklog(3)
	NewCheckoutMetrics(nil).IncRetry()

	inv := NewInventoryMetrics(nil)
	inv.IncMovement("IMPORT")
	inv.ObserveLockWait(time.Millisecond, true)
	inv.SetDrift("p", 2)

	var unset *OutboxMetrics
	unset.IncParked("order_created")
	var unsetMaintenance *MaintenanceMetrics
	unsetMaintenance.IncSkipped()
}
