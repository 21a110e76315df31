package cron

import (
	"context"
	"testing"
	"time"
)

type memoryStore struct {
	values map[string]string
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) DelIfEqual(_ context.Context, key, expected string) (bool, error) {
	if m.values[key] != expected {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusivePerJob(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	workerA, err := NewRedisLock(store, "haulbid:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	workerB, _ := NewRedisLock(store, "haulbid:lock:cron", time.Minute)

	ctx := context.Background()
	lease, ok, err := workerA.Acquire(ctx, "auction-expiry")
	if err != nil || !ok {
		t.Fatalf("first acquire should win: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := workerB.Acquire(ctx, "auction-expiry"); ok {
		t.Fatal("second worker must not take a held job")
	}
	other, ok, _ := workerB.Acquire(ctx, "aggregate-reconcile")
	if !ok {
		t.Fatal("a different job must not be blocked")
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, held := store.values["haulbid:lock:cron:auction-expiry"]; held {
		t.Fatal("owner release should free the key")
	}
	if _, held := store.values["haulbid:lock:cron:aggregate-reconcile"]; !held {
		t.Fatal("releasing one job must leave the other held")
	}
	if err := other.Release(ctx); err != nil {
		t.Fatalf("release other: %v", err)
	}
}

func TestLeaseReleaseSkipsForeignOwner(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	lock, _ := NewRedisLock(store, "haulbid:lock:cron", time.Minute)
	ctx := context.Background()

	lease, _, _ := lock.Acquire(ctx, "auction-expiry")
	// Simulate TTL expiry followed by another worker's acquire.
	store.values["haulbid:lock:cron:auction-expiry"] = "someone-else"
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["haulbid:lock:cron:auction-expiry"] != "someone-else" {
		t.Fatal("stale lease must not delete the new owner's key")
	}

	delete(store.values, "haulbid:lock:cron:auction-expiry")
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release of vanished key: %v", err)
	}
}

func TestNewRedisLockValidation(t *testing.T) {
	if _, err := NewRedisLock(nil, "key", 0); err == nil {
		t.Fatal("expected client error")
	}
	if _, err := NewRedisLock(&memoryStore{}, "", 0); err == nil {
		t.Fatal("expected prefix error")
	}
	lock, _ := NewRedisLock(&memoryStore{}, "key", 0)
	if lock.TTL() != defaultLockTTL {
		t.Fatalf("expected default ttl got %s", lock.TTL())
	}
}
