package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/haulbid-backend/pkg/metrics"
)

type fakeLock struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (f *fakeLock) Acquire(_ context.Context, job string) (Lease, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[job] {
		return nil, false, nil
	}
	f.held[job] = true
	return fakeLease{lock: f, job: job}, true, nil
}

type fakeLease struct {
	lock *fakeLock
	job  string
}

func (l fakeLease) Release(context.Context) error {
	l.lock.mu.Lock()
	defer l.lock.mu.Unlock()
	delete(l.lock.held, l.job)
	return nil
}

type testJob struct {
	name string
	err  error

	mu   sync.Mutex
	runs int
	ctx  context.Context
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs++
	t.ctx = ctx
	return t.err
}

func (t *testJob) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

func TestRunJobOutcomes(t *testing.T) {
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{Logger: testLogger(), Lock: lock, Metrics: metrics.NewCronJobMetrics(prometheus.NewRegistry()), JobTimeout: time.Minute})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx := context.Background()

	ok := &testJob{name: "auction-expiry"}
	if ran := service.runJob(ctx, ok); !ran || ok.count() != 1 {
		t.Fatalf("expected job to run once, ran=%v runs=%d", ran, ok.count())
	}
	if _, hasDeadline := ok.ctx.Deadline(); !hasDeadline {
		t.Fatal("job timeout should bound the run context")
	}
	if lock.held["auction-expiry"] {
		t.Fatal("lease should be released after the run")
	}

	failing := &testJob{name: "aggregate-reconcile", err: errors.New("boom")}
	if ran := service.runJob(ctx, failing); !ran {
		t.Fatal("failing job still counts as ran")
	}
	if lock.held["aggregate-reconcile"] {
		t.Fatal("lease should be released after a failure")
	}

	lock.held["auction-expiry"] = true
	if ran := service.runJob(ctx, ok); ran || ok.count() != 1 {
		t.Fatal("held job must be skipped")
	}

	lock.err = errors.New("redis down")
	if ran := service.runJob(ctx, &testJob{name: "other"}); ran {
		t.Fatal("lock failure must skip the run")
	}
}

func TestRunStartsEveryJobAndStopsOnCancel(t *testing.T) {
	registry := NewRegistry()
	expiry := &testJob{name: "auction-expiry"}
	reconcile := &testJob{name: "aggregate-reconcile"}
	registry.Register(expiry, time.Hour)
	registry.Register(reconcile, 0)

	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: &fakeLock{}, Interval: time.Hour})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for expiry.count() == 0 || reconcile.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("jobs did not run on start")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected lock error")
	}
}
