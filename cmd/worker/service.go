package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

const (
	heartbeatInterval = time.Minute
	shutdownTimeout   = 5 * time.Second
)

type pinger interface {
	Ping(ctx context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger               *logger.Logger
	Redis                pinger
	PubSub               pinger
	NotificationConsumer consumer
	// MetricsServer is optional.
	MetricsServer *http.Server
}

// Service runs the notification consumer next to the metrics endpoint. The
// first of them to fail stops the other.
type Service struct {
	logg     *logger.Logger
	deps     []namedPinger
	consumer consumer
	metrics  *http.Server
	beat     time.Duration
}

type namedPinger struct {
	name string
	pinger
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.Redis == nil:
		return nil, errors.New("redis client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.NotificationConsumer == nil:
		return nil, errors.New("notification consumer is required")
	}
	return &Service{
		logg:     params.Logger,
		deps:     []namedPinger{{"redis", params.Redis}, {"pubsub", params.PubSub}},
		consumer: params.NotificationConsumer,
		metrics:  params.MetricsServer,
		beat:     heartbeatInterval,
	}, nil
}

func (s *Service) ready(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

// Run blocks until ctx ends or a component fails.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.consumer.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "consumer stopped unexpectedly", err)
		}
		return err
	})
	g.Go(func() error { return s.heartbeat(gctx) })
	if s.metrics != nil {
		g.Go(func() error {
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return s.metrics.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

func (s *Service) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(s.beat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.logg.Debug(ctx, "worker.heartbeat")
		}
	}
}
