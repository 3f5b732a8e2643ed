package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/papshop-backend/pkg/logger"
	"github.com/angelmondragon/papshop-backend/pkg/redis"
)

const releaseTimeout = 5 * time.Second

// Lease grants one worker the right to run a maintenance pass. TryAcquire
// returns a release func when ok is true.
type Lease interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// RedisLease is a Lease stored under a per-environment key. Each acquisition
// writes a fresh token and release deletes the key only while that token is
// still there, so an expired lease never frees a successor's.
type RedisLease struct {
	store redis.LockStore
	key   string
	ttl   time.Duration
	logg  *logger.Logger
}

// NewRedisLease sizes ttl to outlast a full pass; zero means two hours.
func NewRedisLease(store redis.LockStore, env string, ttl time.Duration, logg *logger.Logger) (*RedisLease, error) {
	if store == nil {
		return nil, errors.New("lock store required")
	}
	if env == "" {
		return nil, errors.New("environment required")
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &RedisLease{store: store, key: store.LockKey("maintenance", env), ttl: ttl, logg: logg}, nil
}

func (l *RedisLease) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("claim %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if _, err := l.store.ReleaseIfOwner(releaseCtx, l.key, token); err != nil {
			l.logg.Error(ctx, "failed to release maintenance lease", err)
		}
	}, true, nil
}
