package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/papshop-backend/internal/inventory"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

type ledgerReplayer interface {
	ProductIDs(ctx context.Context) ([]uuid.UUID, error)
	Replay(ctx context.Context, productID uuid.UUID) (*inventory.ReplayResult, error)
}

type LedgerReconcileJobParams struct {
	Logger *logger.Logger
	Ledger ledgerReplayer
}

// NewLedgerReconcileJob replays every product's movement log and reports drift.
func NewLedgerReconcileJob(params LedgerReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	return &ledgerReconcileJob{logg: params.Logger, ledger: params.Ledger}, nil
}

type ledgerReconcileJob struct {
	logg   *logger.Logger
	ledger ledgerReplayer
}

func (j *ledgerReconcileJob) Name() string { return "ledger-reconcile" }

// Run checks every product even after a failure. Drifted products and replay
// errors are combined into the returned error.
func (j *ledgerReconcileJob) Run(ctx context.Context) error {
	ids, err := j.ledger.ProductIDs(ctx)
	if err != nil {
		return fmt.Errorf("ledger reconcile: %w", err)
	}

	var errs error
	drifted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		productCtx := j.logg.WithProductID(ctx, id.String())
		result, err := j.ledger.Replay(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("replay %s: %w", id, err))
			continue
		}
		if result.Consistent {
			continue
		}
		drifted++
		j.logg.Warn(j.logg.WithFields(productCtx, map[string]any{
			"initial_stock": result.InitialStock,
			"delta_sum":     result.DeltaSum,
			"current_stock": result.CurrentStock,
			"drift":         result.Drift(),
		}), "stock ledger drift detected")
		errs = multierr.Append(errs, fmt.Errorf("product %s drifted by %d", id, result.Drift()))
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"products": len(ids),
		"drifted":  drifted,
		"failures": len(multierr.Errors(errs)) - drifted,
	}), "ledger reconcile complete")
	return errs
}
