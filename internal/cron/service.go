package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
)

const defaultInterval = 24 * time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout cancels a job that runs longer; zero disables it.
	JobTimeout time.Duration
}

// Service runs every registered job once per interval, holding Lock for the
// whole cycle. A failing job never stops the ones after it.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
		now:        time.Now,
	}
	if s.registry == nil {
		s.registry = &Registry{}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run runs a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single locked cycle and returns the joined job errors.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

func (s *Service) runCycle(ctx context.Context) (err error) {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		// Release on a fresh context so a canceled cycle still frees the lock.
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	jobs := s.registry.Jobs()
	for _, job := range jobs {
		if ctx.Err() != nil {
			err = multierr.Append(err, ctx.Err())
			break
		}
		err = multierr.Append(err, s.runJob(ctx, job))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":        len(jobs),
		"failed_jobs": len(multierr.Errors(err)),
	}), "scheduled run complete")
	return err
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	start := s.now()
	err := job.Run(ctx)
	took := s.now().Sub(start)
	s.metrics.Observe(job.Name(), took, err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		return fmt.Errorf("%s: %w", job.Name(), err)
	}
	s.logg.Info(ctx, "job completed")
	return nil
}
