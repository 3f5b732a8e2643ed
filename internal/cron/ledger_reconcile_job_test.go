package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/papshop-backend/internal/inventory"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

type fakeLedger struct {
	ids      []uuid.UUID
	results  map[uuid.UUID]*inventory.ReplayResult
	failures map[uuid.UUID]error
	replayed []uuid.UUID
	listErr  error
}

func (f *fakeLedger) ProductIDs(context.Context) ([]uuid.UUID, error) {
	return f.ids, f.listErr
}

func (f *fakeLedger) Replay(_ context.Context, id uuid.UUID) (*inventory.ReplayResult, error) {
	f.replayed = append(f.replayed, id)
	if err := f.failures[id]; err != nil {
		return nil, err
	}
	return f.results[id], nil
}

func newReconcileJob(t *testing.T, ledger *fakeLedger) Job {
	t.Helper()
	job, err := NewLedgerReconcileJob(LedgerReconcileJobParams{Logger: logger.Nop(), Ledger: ledger})
	if err != nil {
		t.Fatalf("NewLedgerReconcileJob: %v", err)
	}
	return job
}

func TestLedgerReconcileJobPassesWhenConsistent(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ledger := &fakeLedger{
		ids: []uuid.UUID{a, b},
		results: map[uuid.UUID]*inventory.ReplayResult{
			a: {ProductID: a, InitialStock: 5, DeltaSum: -2, CurrentStock: 3, Consistent: true},
			b: {ProductID: b, InitialStock: 0, DeltaSum: 4, CurrentStock: 4, Consistent: true},
		},
	}
	if err := newReconcileJob(t, ledger).Run(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ledger.replayed) != 2 {
		t.Fatalf("expected both products replayed, got %d", len(ledger.replayed))
	}
}

func TestLedgerReconcileJobCombinesDriftAndFailures(t *testing.T) {
	ok, drifted, broken := uuid.New(), uuid.New(), uuid.New()
	ledger := &fakeLedger{
		ids: []uuid.UUID{drifted, broken, ok},
		results: map[uuid.UUID]*inventory.ReplayResult{
			ok:      {ProductID: ok, InitialStock: 1, CurrentStock: 1, Consistent: true},
			drifted: {ProductID: drifted, InitialStock: 5, DeltaSum: -1, CurrentStock: 2},
		},
		failures: map[uuid.UUID]error{broken: errors.New("lock timeout")},
	}
	err := newReconcileJob(t, ledger).Run(context.Background())
	if err == nil {
		t.Fatal("expected combined error")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 combined errors, got %d: %v", got, err)
	}
	if len(ledger.replayed) != 3 {
		t.Fatalf("a failure must not stop the sweep, replayed %d", len(ledger.replayed))
	}
}

func TestLedgerReconcileJobListError(t *testing.T) {
	ledger := &fakeLedger{listErr: errors.New("db down")}
	if err := newReconcileJob(t, ledger).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
