package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/pkg/config"
	"github.com/angelmondragon/papshop-backend/pkg/db/models"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
	"github.com/angelmondragon/papshop-backend/pkg/metrics"
	"github.com/angelmondragon/papshop-backend/pkg/outbox/routes"
	"github.com/angelmondragon/papshop-backend/pkg/pubsub"
)

const (
	sendTimeout = 15 * time.Second
	maxIdleWait = 10 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRows interface {
	Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkDelivered(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Park(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
}

type router interface {
	Route(row models.OutboxEvent) (*routes.Delivery, error)
}

type transport interface {
	Publish(ctx context.Context, topic, orderingKey string, data []byte, attrs map[string]string) pubsub.Result
	Resume(topic, orderingKey string)
}

type RelayParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Rows      outboxRows
	Router    router
	Transport transport
	Metrics   *metrics.OutboxMetrics
	Settings  config.OutboxConfig
}

// Relay moves committed outbox rows to Pub/Sub. Each batch is claimed with
// SKIP LOCKED inside one transaction, so several relays can run side by side
// and a row is booked exactly once per attempt.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	rows        outboxRows
	router      router
	transport   transport
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("tx runner required")
	case params.Rows == nil:
		return nil, errors.New("outbox store required")
	case params.Router == nil:
		return nil, errors.New("route table required")
	case params.Transport == nil:
		return nil, errors.New("transport required")
	}
	r := &Relay{
		logg:        params.Logger,
		db:          params.DB,
		rows:        params.Rows,
		router:      params.Router,
		transport:   params.Transport,
		metrics:     params.Metrics,
		batchSize:   params.Settings.BatchSize,
		maxAttempts: params.Settings.MaxAttempts,
		poll:        time.Duration(params.Settings.PollIntervalMS) * time.Millisecond,
	}
	if r.batchSize <= 0 {
		r.batchSize = 50
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 10
	}
	if r.poll <= 0 {
		r.poll = 500 * time.Millisecond
	}
	return r, nil
}

// idleBackoff stretches the wait while the table stays empty or the database
// keeps failing. A batch that moved rows starts a fresh one.
func (r *Relay) idleBackoff() retry.Backoff {
	return retry.WithJitterPercent(20, retry.WithCappedDuration(maxIdleWait, retry.NewExponential(r.poll)))
}

// Run drains the outbox until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	wait := r.idleBackoff()
	for {
		moved, err := r.Drain(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			r.logg.Error(ctx, "outbox batch failed", err)
		}
		if err == nil && moved > 0 {
			wait = r.idleBackoff()
			continue
		}
		delay, _ := wait.Next()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

type flight struct {
	row      models.OutboxEvent
	delivery *routes.Delivery
	result   pubsub.Result
	err      error
}

// Drain claims one batch, sends every routable row, then books each outcome
// once all sends have settled. It returns the number of rows claimed.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.rows.Claim(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		claimed = len(rows)
		if claimed == 0 {
			return nil
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()

		flights := make([]flight, len(rows))
		for i, row := range rows {
			flights[i] = r.send(sendCtx, row)
		}

		var failures error
		for _, f := range flights {
			if f.err == nil {
				_, f.err = f.result.Get(sendCtx)
			}
			if err := r.book(ctx, tx, f); err != nil {
				return err
			}
			failures = multierr.Append(failures, f.err)
		}
		if failures != nil {
			r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
				"claimed": claimed,
				"failed":  len(multierr.Errors(failures)),
			}), "outbox batch had delivery failures")
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) send(ctx context.Context, row models.OutboxEvent) flight {
	d, err := r.router.Route(row)
	if err != nil {
		return flight{row: row, err: err}
	}
	attrs := map[string]string{
		"event_id":       d.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    d.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		"version":        strconv.Itoa(d.Envelope.Version),
	}
	return flight{
		row:      row,
		delivery: d,
		result:   r.transport.Publish(ctx, d.Topic, d.OrderingKey, row.Payload, attrs),
	}
}

// book records the outcome of one flight. Unroutable rows and rows on their
// last attempt are parked; other failures wait for the next batch, and the
// ordering key is resumed so later events for that aggregate can follow.
func (r *Relay) book(ctx context.Context, tx *gorm.DB, f flight) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":    f.row.ID.String(),
		"event_type":   string(f.row.EventType),
		"aggregate_id": f.row.AggregateID.String(),
		"attempt":      f.row.AttemptCount + 1,
	})
	topic := ""
	if f.delivery != nil {
		topic = f.delivery.Topic
		r.metrics.ObserveDelivery(topic, f.err)
	}

	switch {
	case f.err == nil:
		if err := r.rows.MarkDelivered(tx, f.row.ID); err != nil {
			return fmt.Errorf("mark %s delivered: %w", f.row.ID, err)
		}
		r.logg.Debug(r.logg.WithField(logCtx, "topic", topic), "outbox event delivered")
		return nil

	case errors.Is(f.err, routes.ErrUnroutable) || f.row.AttemptCount+1 >= r.maxAttempts:
		if err := r.rows.Park(tx, f.row.ID, f.err, r.maxAttempts); err != nil {
			return fmt.Errorf("park %s: %w", f.row.ID, err)
		}
		r.metrics.IncParked(string(f.row.EventType))
		r.logg.Error(logCtx, "outbox event parked", f.err)

	default:
		if err := r.rows.RecordFailure(tx, f.row.ID, f.err); err != nil {
			return fmt.Errorf("record %s failure: %w", f.row.ID, err)
		}
		r.logg.Warn(r.logg.WithField(logCtx, "error", f.err.Error()), "outbox delivery failed, will retry")
	}
	if f.delivery != nil {
		r.transport.Resume(f.delivery.Topic, f.delivery.OrderingKey)
	}
	return nil
}
