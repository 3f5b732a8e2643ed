package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/papshop-backend/internal/cron"
	"github.com/angelmondragon/papshop-backend/internal/inventory"
	"github.com/angelmondragon/papshop-backend/pkg/bootstrap"
	"github.com/angelmondragon/papshop-backend/pkg/metrics"
	"github.com/angelmondragon/papshop-backend/pkg/outbox"
)

const name = "cron-worker"

func main() {
	ctx := context.Background()
	proc, err := bootstrap.Open(ctx, name)
	if err != nil {
		bootstrap.Fail(name, "open", err)
	}
	defer proc.Close()

	scheduler, err := buildScheduler(ctx, proc)
	if err != nil {
		proc.Close()
		bootstrap.Fail(name, "scheduler", err)
	}

	runCtx, stop := proc.SignalContext()
	defer stop()
	if err := scheduler.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		proc.Logger.Error(runCtx, "maintenance scheduler stopped", err)
		return
	}
	proc.Logger.Info(runCtx, "maintenance scheduler stopped")
}

func buildScheduler(ctx context.Context, proc *bootstrap.Process) (*cron.Scheduler, error) {
	cfg := proc.Config
	redisClient, err := proc.Redis(ctx)
	if err != nil {
		return nil, err
	}
	store := outbox.NewStore(proc.DB.DB())

	inventoryMetrics := metrics.NewInventoryMetrics(prometheus.DefaultRegisterer)
	ledger, err := inventory.NewService(inventory.ServiceParams{
		Repository: inventory.NewRepository(proc.DB.DB()),
		TxRunner:   proc.DB,
		Locker:     inventory.NewMemoryLocker(cfg.Inventory.LockTimeout, inventoryMetrics),
		Outbox:     outbox.NewWriter(store, proc.Logger),
		Metrics:    inventoryMetrics,
		Logger:     proc.Logger,
	})
	if err != nil {
		return nil, err
	}

	reconcile, err := cron.NewLedgerReconcileJob(cron.LedgerReconcileJobParams{Logger: proc.Logger, Ledger: ledger})
	if err != nil {
		return nil, err
	}
	prune, err := cron.NewOutboxPruneJob(cron.OutboxPruneJobParams{
		Logger:    proc.Logger,
		Outbox:    store,
		Metrics:   metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
		Retention: time.Duration(cfg.Cron.RetentionDays) * 24 * time.Hour,
	})
	if err != nil {
		return nil, err
	}
	lease, err := cron.NewRedisLease(redisClient, cfg.App.Env, 0, proc.Logger)
	if err != nil {
		return nil, err
	}

	return cron.NewScheduler(cron.SchedulerParams{
		Logger:   proc.Logger,
		Lease:    lease,
		Jobs:     []cron.Job{reconcile, prune},
		Metrics:  metrics.NewMaintenanceMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
}
