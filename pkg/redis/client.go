// Package redis is the shop's single Redis connection and the narrow stores
// built on it: checkout and cancel replay records, product and maintenance
// locks, and the dashboard cache. Every key lives under the "papshop" prefix.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/papshop-backend/pkg/config"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

// ErrNil is returned by Get when the key does not exist.
var ErrNil = redis.Nil

var errNotConnected = errors.New("redis: not connected")

// compareAndDelete frees a lock only for the token that took it.
const compareAndDelete = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// IdempotencyStore holds replay records for checkout and cancel.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
}

// LockStore backs the product locks and the maintenance lease.
type LockStore interface {
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, token string) (bool, error)
	LockKey(scope, id string) string
}

// CacheStore backs the dashboard stats cache.
type CacheStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	CacheKey(parts ...string) string
}

// conn is the part of go-redis the stores use.
type conn interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	Eval(context.Context, string, []string, ...any) *redis.Cmd
}

// Client implements every store over one connection pool.
type Client struct {
	conn  conn
	close func() error
}

// New dials Redis from config and pings it before returning.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connected")
	}
	return &Client{conn: rdb, close: rdb.Close}, nil
}

// dialOptions prefers PAPSHOP_REDIS_URL and lets explicit pool and timeout
// settings fill whatever the URL leaves unset.
func dialOptions(cfg config.RedisConfig) (*redis.Options, error) {
	if !cfg.Enabled() {
		return nil, errors.New("redis url or address is required")
	}
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		opts = parsed
		if opts.DB == 0 {
			opts.DB = cfg.DB
		}
	}
	fillInt(&opts.PoolSize, cfg.PoolSize)
	fillInt(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDuration(&opts.DialTimeout, cfg.DialTimeout)
	fillDuration(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDuration(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func fillDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}

func (c *Client) ready() error {
	if c == nil || c.conn == nil {
		return errNotConnected
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.conn.Ping(ctx).Err()
}

// Get returns the value at key, or ErrNil.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.conn.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.conn.Set(ctx, key, value, ttl).Err()
}

// SetNX reports whether this call created the key.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	return c.conn.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.conn.Del(ctx, keys...).Err()
}

// ReleaseIfOwner deletes key only while it still holds token, so a holder
// whose lock expired cannot free its successor's.
func (c *Client) ReleaseIfOwner(ctx context.Context, key, token string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	deleted, err := c.conn.Eval(ctx, compareAndDelete, []string{key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	return deleted == 1, nil
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return key("idempotency", scope, id)
}

func (c *Client) LockKey(scope, id string) string {
	return key("lock", scope, id)
}

func (c *Client) CacheKey(parts ...string) string {
	return key("cache", parts...)
}

func (c *Client) Close() error {
	if c == nil || c.close == nil {
		return nil
	}
	return c.close()
}

// key joins non-blank parts as papshop:<kind>:<part>...
func key(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString("papshop:")
	b.WriteString(kind)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
