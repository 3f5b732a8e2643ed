package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memoryLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, taken := m.values[key]; taken {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) ReleaseIfOwner(_ context.Context, key, token string) (bool, error) {
	if m.values[key] != token {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryLockStore) LockKey(scope, id string) string {
	return "papshop:lock:" + scope + ":" + id
}

func TestRedisLeaseIsExclusivePerEnvironment(t *testing.T) {
	store := newMemoryLockStore()
	a, err := NewRedisLease(store, "prod", 0, nil)
	if err != nil {
		t.Fatalf("new lease: %v", err)
	}
	b, _ := NewRedisLease(store, "prod", 0, nil)
	dev, _ := NewRedisLease(store, "dev", time.Minute, nil)

	release, ok, err := a.TryAcquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("first acquire ok=%v err=%v", ok, err)
	}
	if _, ok, _ := b.TryAcquire(context.Background()); ok {
		t.Fatal("second worker took a held lease")
	}
	if _, ok, _ := dev.TryAcquire(context.Background()); !ok {
		t.Fatal("other environment should not contend")
	}
	if store.ttls["papshop:lock:maintenance:prod"] != 2*time.Hour {
		t.Fatalf("default ttl = %v", store.ttls["papshop:lock:maintenance:prod"])
	}

	release()
	if _, held := store.values["papshop:lock:maintenance:prod"]; held {
		t.Fatal("release left the key behind")
	}
	if _, ok, _ := b.TryAcquire(context.Background()); !ok {
		t.Fatal("lease should be free after release")
	}
}

func TestRedisLeaseReleaseKeepsSuccessorsToken(t *testing.T) {
	store := newMemoryLockStore()
	lease, _ := NewRedisLease(store, "prod", 0, nil)
	release, _, _ := lease.TryAcquire(context.Background())

	// the first holder's ttl ran out and another worker took over
	store.values["papshop:lock:maintenance:prod"] = "successor"
	release()

	if store.values["papshop:lock:maintenance:prod"] != "successor" {
		t.Fatal("stale release removed the successor's lease")
	}
}

func TestRedisLeaseErrors(t *testing.T) {
	store := newMemoryLockStore()
	store.err = errors.New("connection refused")
	lease, _ := NewRedisLease(store, "prod", 0, nil)
	if _, ok, err := lease.TryAcquire(context.Background()); err == nil || ok {
		t.Fatalf("expected store error, ok=%v err=%v", ok, err)
	}
	if _, err := NewRedisLease(nil, "prod", 0, nil); err == nil {
		t.Fatal("expected missing store error")
	}
	if _, err := NewRedisLease(newMemoryLockStore(), "", 0, nil); err == nil {
		t.Fatal("expected missing environment error")
	}
}
