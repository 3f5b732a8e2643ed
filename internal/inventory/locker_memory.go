package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/papshop-backend/pkg/errors"
	"github.com/angelmondragon/papshop-backend/pkg/metrics"
)

const defaultLockTimeout = 2 * time.Second

// MemoryLocker is an in-process keyed mutex. It only serializes writers inside
// one API process and is meant for single-instance and SQLite deployments.
type MemoryLocker struct {
	mu      sync.Mutex
	slots   map[uuid.UUID]*lockSlot
	timeout time.Duration
	metrics *metrics.InventoryMetrics
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker builds a keyed mutex that gives up after timeout.
func NewMemoryLocker(timeout time.Duration, m *metrics.InventoryMetrics) *MemoryLocker {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	return &MemoryLocker{
		slots:   make(map[uuid.UUID]*lockSlot),
		timeout: timeout,
		metrics: m,
	}
}

// Acquire blocks until the product lock is free, the timeout elapses
// (CONTENTION) or ctx is done.
func (l *MemoryLocker) Acquire(ctx context.Context, productID uuid.UUID) (Release, error) {
	slot := l.ref(productID)
	start := time.Now()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
		l.metrics.ObserveLockWait(time.Since(start), false)
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.unref(productID, slot)
			})
		}, nil
	case <-timer.C:
		l.unref(productID, slot)
		l.metrics.ObserveLockWait(time.Since(start), true)
		return nil, contentionError(productID, l.timeout)
	case <-ctx.Done():
		l.unref(productID, slot)
		return nil, ctx.Err()
	}
}

func (l *MemoryLocker) ref(productID uuid.UUID) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[productID]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[productID] = slot
	}
	slot.refs++
	return slot
}

func (l *MemoryLocker) unref(productID uuid.UUID, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, productID)
	}
}

func contentionError(productID uuid.UUID, waited time.Duration) error {
	return pkgerrors.New(pkgerrors.CodeContention, "product is locked by another operation").
		WithDetails(map[string]any{
			"product_id": productID.String(),
			"waited_ms":  waited.Milliseconds(),
		})
}
