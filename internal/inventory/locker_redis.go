package inventory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/angelmondragon/papshop-backend/pkg/errors"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
	"github.com/angelmondragon/papshop-backend/pkg/metrics"
	"github.com/angelmondragon/papshop-backend/pkg/redis"
)

const (
	defaultLockTTL      = 30 * time.Second
	defaultPollInterval = 15 * time.Millisecond
	releaseTimeout      = 2 * time.Second
	productLockScope    = "product"
)

var errLockHeld = errors.New("lock held by another owner")

// RedisLocker is a distributed product lock built on SET NX PX with an owner
// token. Release only deletes the key while it still carries that token.
type RedisLocker struct {
	store   redis.LockStore
	ttl     time.Duration
	timeout time.Duration
	poll    time.Duration
	metrics *metrics.InventoryMetrics
	logg    *logger.Logger
}

// RedisLockerParams configure a RedisLocker.
type RedisLockerParams struct {
	Store        redis.LockStore
	TTL          time.Duration
	Timeout      time.Duration
	PollInterval time.Duration
	Metrics      *metrics.InventoryMetrics
	Logger       *logger.Logger
}

// NewRedisLocker builds a distributed locker.
func NewRedisLocker(params RedisLockerParams) (*RedisLocker, error) {
	if params.Store == nil {
		return nil, errors.New("redis lock store required")
	}
	l := &RedisLocker{
		store:   params.Store,
		ttl:     params.TTL,
		timeout: params.Timeout,
		poll:    params.PollInterval,
		metrics: params.Metrics,
		logg:    params.Logger,
	}
	if l.ttl <= 0 {
		l.ttl = defaultLockTTL
	}
	if l.timeout <= 0 {
		l.timeout = defaultLockTimeout
	}
	if l.poll <= 0 {
		l.poll = defaultPollInterval
	}
	return l, nil
}

// Acquire polls SET NX until it wins, the timeout elapses (CONTENTION) or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, productID uuid.UUID) (Release, error) {
	key := l.store.LockKey(productLockScope, productID.String())
	token := uuid.NewString()
	start := time.Now()

	backoff := retry.WithMaxDuration(l.timeout, retry.NewConstant(l.poll))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := l.store.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(errLockHeld)
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errLockHeld):
			l.metrics.ObserveLockWait(time.Since(start), true)
			return nil, contentionError(productID, l.timeout)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire product lock")
		}
	}
	l.metrics.ObserveLockWait(time.Since(start), false)

	releaseCtx := context.WithoutCancel(ctx)
	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(releaseCtx, releaseTimeout)
			defer cancel()
			released, err := l.store.ReleaseIfOwner(rctx, key, token)
			if l.logg == nil {
				return
			}
			logCtx := l.logg.WithProductID(rctx, productID.String())
			if err != nil {
				l.logg.Error(logCtx, "release product lock failed", err)
				return
			}
			if !released {
				l.logg.Warn(logCtx, "product lock expired before release")
			}
		})
	}, nil
}
