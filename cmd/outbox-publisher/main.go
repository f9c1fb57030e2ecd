package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/migrate"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-checkout/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	replay := flag.String("replay", "", "comma-separated DLQ event ids to move back into the outbox, then exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == config.LogFormatConsole,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	if *replay != "" {
		if err := replayDLQ(ctx, outbox.NewDLQRepository(dbClient.DB()), *replay, logg); err != nil {
			logg.Error(ctx, "dlq replay incomplete", err)
			os.Exit(1)
		}
		return
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.RolePublisher, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(ctx, "failed to build event registry", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	if server := metrics.NewServer(cfg.App.MetricsPort, reg); server != nil {
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
		defer server.Close()
	}

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewOutboxMetrics(reg),
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox publisher", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "outbox publisher shutting down gracefully")
}

func replayDLQ(ctx context.Context, dlq *outbox.DLQRepository, ids string, logg *logger.Logger) error {
	var errs error
	for _, raw := range strings.Split(ids, ",") {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("event id %q: %w", raw, err))
			continue
		}
		if err := dlq.Replay(ctx, id); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		logg.Info(logg.WithField(ctx, "event_id", id.String()), "dlq entry replayed")
	}
	return errs
}
