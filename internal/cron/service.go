package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/haulbid-backend/pkg/logger"
	"github.com/angelmondragon/haulbid-backend/pkg/metrics"
)

const defaultInterval = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Interval applies to entries registered without one.
	Interval time.Duration
	// JobTimeout caps one run. Keep it under the lock TTL so a lease never
	// expires under a live run.
	JobTimeout time.Duration
}

// Service runs every registered job on its own ticker. Jobs never overlap
// across workers because each run holds the job's lease.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: params.JobTimeout,
	}, nil
}

// Run blocks until ctx is cancelled, then waits for in-flight runs.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, entry := range s.registry.Entries() {
		every := entry.Every
		if every <= 0 {
			every = s.interval
		}
		wg.Add(1)
		go func(job Job, every time.Duration) {
			defer wg.Done()
			s.loop(ctx, job, every)
		}(entry.Job, every)
	}
	<-ctx.Done()
	wg.Wait()
	s.logg.Info(ctx, "cron service context canceled")
	return ctx.Err()
}

func (s *Service) loop(ctx context.Context, job Job, every time.Duration) {
	s.runJob(ctx, job)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJob(ctx, job)
		}
	}
}

// runJob reports whether the job ran on this worker.
func (s *Service) runJob(ctx context.Context, job Job) bool {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})

	lease, ok, err := s.lock.Acquire(jobCtx, job.Name())
	if err != nil {
		s.logg.Error(jobCtx, "lock acquire failed", err)
		s.metrics.IncFailure(job.Name())
		return false
	}
	if !ok {
		s.logg.Debug(jobCtx, "job held by another worker")
		s.metrics.IncSkipped(job.Name())
		return false
	}
	defer func() {
		// Release must outlive a cancelled run.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(jobCtx), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			s.logg.Error(jobCtx, "failed to release job lock", err)
		}
	}()

	runCtx := jobCtx
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	err = job.Run(runCtx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(job.Name())
		return true
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(job.Name())
	return true
}
