// Package cron runs the papshop maintenance jobs: ledger reconciliation and
// outbox pruning. Workers share a Redis lease so a pass runs on one instance
// at a time.
package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/papshop-backend/pkg/logger"
	"github.com/angelmondragon/papshop-backend/pkg/metrics"
)

// Job is one maintenance task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type SchedulerParams struct {
	Logger   *logger.Logger
	Lease    Lease
	Jobs     []Job
	Metrics  *metrics.MaintenanceMetrics
	Interval time.Duration
}

// Scheduler runs every job once per pass, in registration order.
type Scheduler struct {
	logg     *logger.Logger
	lease    Lease
	jobs     []Job
	metrics  *metrics.MaintenanceMetrics
	interval time.Duration
}

func NewScheduler(params SchedulerParams) (*Scheduler, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lease == nil {
		return nil, errors.New("lease required")
	}
	if params.Interval <= 0 {
		params.Interval = time.Hour
	}
	jobs := make([]Job, 0, len(params.Jobs))
	for _, job := range params.Jobs {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return &Scheduler{
		logg:     params.Logger,
		lease:    params.Lease,
		jobs:     jobs,
		metrics:  params.Metrics,
		interval: params.Interval,
	}, nil
}

// Start runs a pass immediately and then once per interval until ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	names := make([]string, len(s.jobs))
	for i, job := range s.jobs {
		names[i] = job.Name()
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"jobs": names, "interval": s.interval.String()}), "maintenance scheduler started")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if err := s.Pass(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "maintenance pass failed", err)
		}
		timer.Reset(s.interval)
	}
}

// Pass takes the lease and runs every job, collecting failures. A lease held
// by another worker skips the pass without error.
func (s *Scheduler) Pass(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	release, ok, err := s.lease.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("maintenance lease: %w", err)
	}
	if !ok {
		s.metrics.IncSkipped()
		s.logg.Debug(ctx, "maintenance lease held by another worker")
		return nil
	}
	defer release()

	var errs error
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		errs = multierr.Append(errs, s.runJob(ctx, job))
	}
	return errs
}

func (s *Scheduler) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	started := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(started)
	s.metrics.ObserveJob(job.Name(), elapsed, err)

	jobCtx = s.logg.WithField(jobCtx, "elapsed_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "maintenance job failed", err)
		return fmt.Errorf("%s: %w", job.Name(), err)
	}
	s.logg.Info(jobCtx, "maintenance job finished")
	return nil
}
