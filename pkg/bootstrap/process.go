// Package bootstrap holds the startup sequence the papshop binaries share:
// .env, config, logger, database and dev migrations, plus ordered teardown.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/papshop-backend/pkg/config"
	"github.com/angelmondragon/papshop-backend/pkg/db"
	"github.com/angelmondragon/papshop-backend/pkg/instance"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
	"github.com/angelmondragon/papshop-backend/pkg/migrate"
	"github.com/angelmondragon/papshop-backend/pkg/redis"
)

type closer struct {
	name string
	fn   func() error
}

// Process is a started papshop binary.
type Process struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client

	closers []closer
}

type options struct {
	devMigrations bool
}

// Option adjusts Open.
type Option func(*options)

// WithoutDevMigrations leaves the schema alone even when auto-migrate is on.
func WithoutDevMigrations() Option {
	return func(o *options) { o.devMigrations = false }
}

// Open loads config for the named binary, connects the database and applies
// dev migrations. On error everything opened so far is closed again.
func Open(ctx context.Context, name string, opts ...Option) (*Process, error) {
	o := options{devMigrations: true}
	for _, opt := range opts {
		opt(&o)
	}

	if err := godotenv.Load(); err != nil {
		logger.New(logger.Options{ServiceName: name}).Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Service.Kind = name

	p := &Process{
		Name:   name,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: name,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Console:     strings.EqualFold(cfg.App.LogFormat, "console"),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}
	p.DB, err = db.New(ctx, cfg.DB, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	p.OnClose("database", p.DB.Close)

	if !o.devMigrations {
		return p, nil
	}
	if err := migrate.MaybeRunDev(ctx, cfg, p.Logger, p.DB); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Redis connects to the configured Redis and closes it with the process.
func (p *Process) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	p.OnClose("redis", client.Close)
	return client, nil
}

// OnClose registers fn to run on Close. Closers run newest first.
func (p *Process) OnClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

func (p *Process) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.fn(); err != nil {
			p.Logger.Error(p.Logger.WithField(context.Background(), "resource", c.name), "close failed", err)
		}
	}
	p.closers = nil
}

// SignalContext is canceled on SIGINT or SIGTERM and carries the process
// identity as log fields.
func (p *Process) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return p.Logger.WithFields(ctx, map[string]any{
		"env":      p.Config.App.Env,
		"service":  p.Name,
		"instance": instance.GetID(),
	}), stop
}

// Fail logs err against the startup step that produced it and exits.
func Fail(name, step string, err error) {
	logg := logger.New(logger.Options{ServiceName: name})
	logg.Error(logg.WithField(context.Background(), "step", step), "startup failed", err)
	os.Exit(1)
}
