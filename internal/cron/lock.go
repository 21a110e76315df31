package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 5 * time.Minute

// Lock hands out one lease per job name across every worker instance.
type Lock interface {
	Acquire(ctx context.Context, job string) (Lease, bool, error)
}

// Lease is a held job lock.
type Lease interface {
	Release(ctx context.Context) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfEqual(ctx context.Context, key, expected string) (bool, error)
}

// RedisLock keys each job under prefix with SETNX and a TTL. The TTL bounds
// how long a crashed worker can hold a job.
type RedisLock struct {
	client redisStore
	prefix string
	ttl    time.Duration
}

func NewRedisLock(client redisStore, prefix string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if prefix == "" {
		return nil, errors.New("lock key prefix is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, prefix: prefix, ttl: ttl}, nil
}

// TTL is how long a lease lives without release.
func (l *RedisLock) TTL() time.Duration { return l.ttl }

func (l *RedisLock) key(job string) string { return l.prefix + ":" + job }

// Acquire returns ok=false when another worker holds job.
func (l *RedisLock) Acquire(ctx context.Context, job string) (Lease, bool, error) {
	lease := &redisLease{client: l.client, key: l.key(job), owner: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, lease.key, lease.owner, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("setnx %s: %w", lease.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return lease, true, nil
}

type redisLease struct {
	client redisStore
	key    string
	owner  string
}

// Release deletes the key only while this lease still owns it; an expired
// lease that another worker re-acquired is left alone.
func (l *redisLease) Release(ctx context.Context) error {
	if _, err := l.client.DelIfEqual(ctx, l.key, l.owner); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
