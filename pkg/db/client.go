// Package db owns the gorm connection shared by the services. Postgres runs
// behind the pgx driver; SQLite is the dev and test stand-in. Transactions go
// through WithTx so lock failures come back typed as CONTENTION.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/papshop-backend/pkg/config"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

type Client struct {
	conn        *gorm.DB
	lockTimeout time.Duration
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the configured driver and sizes its pool.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	conn, err := gorm.Open(dialector(cfg), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		NowFunc:                NowUTC,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	sizePool(pool, cfg)

	if logg != nil {
		logg.Info(logg.WithField(ctx, "driver", conn.Dialector.Name()), "database connected")
	}
	return &Client{conn: conn, lockTimeout: cfg.LockTimeout}, nil
}

// NewFromConn wraps an already open handle; tests use it with SQLite.
func NewFromConn(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

// NowUTC stamps autoCreateTime and autoUpdateTime columns. Cursor pagination
// compares timestamps, so every write must use one zone.
func NowUTC() time.Time {
	return time.Now().UTC()
}

func dialector(cfg config.DBConfig) gorm.Dialector {
	if cfg.IsSQLite() {
		return sqlite.Open(cfg.DSN)
	}
	return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
}

func sizePool(pool *sql.DB, cfg config.DBConfig) {
	if cfg.IsSQLite() {
		// SQLite has one writer; a second connection only earns SQLITE_BUSY.
		pool.SetMaxOpenConns(1)
		return
	}
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in one transaction. gorm rolls back when fn errors or
// panics. On Postgres the row lock wait is capped at the configured
// lock_timeout so a stuck writer turns into a CONTENTION error instead of a
// hung request.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := c.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.lockTimeout > 0 && tx.Dialector.Name() == "postgres" {
			if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", c.lockTimeout.Milliseconds())).Error; err != nil {
				return fmt.Errorf("set lock_timeout: %w", err)
			}
		}
		return fn(tx)
	})
	return classify(err)
}
