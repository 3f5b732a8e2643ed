package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/pkg/logger"
	"github.com/angelmondragon/papshop-backend/pkg/metrics"
)

type outboxTable interface {
	Prune(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	Backlog(tx *gorm.DB) (int64, error)
}

type OutboxPruneJobParams struct {
	Logger  *logger.Logger
	Outbox  outboxTable
	Metrics *metrics.OutboxMetrics
	// Retention is how long delivered rows are kept. Zero means 30 days.
	Retention time.Duration
}

// NewOutboxPruneJob deletes delivered outbox rows past retention and reports
// the undelivered backlog, parked rows included.
func NewOutboxPruneJob(params OutboxPruneJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox store required")
	}
	if params.Retention <= 0 {
		params.Retention = 30 * 24 * time.Hour
	}
	return &outboxPruneJob{
		logg:      params.Logger,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		retention: params.Retention,
		now:       time.Now,
	}, nil
}

type outboxPruneJob struct {
	logg      *logger.Logger
	outbox    outboxTable
	metrics   *metrics.OutboxMetrics
	retention time.Duration
	now       func() time.Time
}

func (j *outboxPruneJob) Name() string { return "outbox-prune" }

func (j *outboxPruneJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	pruned, err := j.outbox.Prune(ctx, nil, cutoff)
	if err != nil {
		return fmt.Errorf("prune delivered rows: %w", err)
	}
	backlog, err := j.outbox.Backlog(nil)
	if err != nil {
		return fmt.Errorf("count backlog: %w", err)
	}
	j.metrics.SetBacklog(backlog)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff.Format(time.RFC3339),
		"pruned":  pruned,
		"backlog": backlog,
	}), "outbox pruned")
	return nil
}
