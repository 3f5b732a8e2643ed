package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/pkg/logger"
	"github.com/angelmondragon/papshop-backend/pkg/metrics"
)

type fakeOutboxTable struct {
	cutoff   time.Time
	pruned   int64
	backlog  int64
	pruneErr error
}

func (f *fakeOutboxTable) Prune(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.pruned, f.pruneErr
}

func (f *fakeOutboxTable) Backlog(*gorm.DB) (int64, error) {
	return f.backlog, nil
}

func TestOutboxPruneJobUsesRetentionWindow(t *testing.T) {
	table := &fakeOutboxTable{pruned: 4, backlog: 2}
	job, err := NewOutboxPruneJob(OutboxPruneJobParams{
		Logger:    logger.Nop(),
		Outbox:    table,
		Metrics:   metrics.NewOutboxMetrics(prometheus.NewRegistry()),
		Retention: 48 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job.(*outboxPruneJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if want := now.Add(-48 * time.Hour); !table.cutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", table.cutoff, want)
	}
}

func TestOutboxPruneJobDefaultsAndFailures(t *testing.T) {
	table := &fakeOutboxTable{pruneErr: errors.New("statement timeout")}
	job, err := NewOutboxPruneJob(OutboxPruneJobParams{Logger: logger.Nop(), Outbox: table})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if got := job.(*outboxPruneJob).retention; got != 30*24*time.Hour {
		t.Fatalf("default retention = %v", got)
	}
	if err := job.Run(context.Background()); !errors.Is(err, table.pruneErr) {
		t.Fatalf("expected prune error, got %v", err)
	}
	if _, err := NewOutboxPruneJob(OutboxPruneJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected missing store error")
	}
}
