package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/papshop-backend/pkg/bootstrap"
	"github.com/angelmondragon/papshop-backend/pkg/metrics"
	"github.com/angelmondragon/papshop-backend/pkg/outbox"
	"github.com/angelmondragon/papshop-backend/pkg/outbox/routes"
	"github.com/angelmondragon/papshop-backend/pkg/pubsub"
)

const name = "outbox-publisher"

func main() {
	proc, err := bootstrap.Open(context.Background(), name)
	if err != nil {
		bootstrap.Fail(name, "open", err)
	}
	defer proc.Close()
	cfg := proc.Config

	table, err := routes.NewTable(cfg.PubSub)
	if err != nil {
		proc.Close()
		bootstrap.Fail(name, "route table", err)
	}
	topics, err := pubsub.Dial(context.Background(), cfg.GCP, table.Topics(), proc.Logger)
	if err != nil {
		proc.Close()
		bootstrap.Fail(name, "pubsub", err)
	}
	proc.OnClose("pubsub", topics.Close)

	relay, err := NewRelay(RelayParams{
		Logger:    proc.Logger,
		DB:        proc.DB,
		Rows:      outbox.NewStore(proc.DB.DB()),
		Router:    table,
		Transport: topics,
		Metrics:   metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
		Settings:  cfg.Outbox,
	})
	if err != nil {
		proc.Close()
		bootstrap.Fail(name, "relay", err)
	}

	ctx, stop := proc.SignalContext()
	defer stop()
	proc.Logger.Info(proc.Logger.WithField(ctx, "topics", table.Topics()), "outbox relay starting")
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		proc.Logger.Error(ctx, "outbox relay stopped", err)
		return
	}
	proc.Logger.Info(ctx, "outbox relay stopped")
}
