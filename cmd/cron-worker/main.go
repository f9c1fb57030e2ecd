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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/cron"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/migrate"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/redis"
)

const (
	serviceName   = "cron-worker"
	lockKeyFormat = "sf:cron-worker:lock:%s"
)

func main() {
	only := flag.String("jobs", "", "comma-separated job names to run (default: all)")
	once := flag.Bool("once", false, "run a single cycle and exit")
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

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildRegistry(cfg, logg, dbClient, *only)
	if err != nil {
		logg.Error(ctx, "failed to build cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
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

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(reg),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, only string) (*cron.Registry, error) {
	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       outbox.NewRepository(dbClient.DB()),
		Retention:        cfg.Cron.OutboxRetention,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	dlqJob, err := cron.NewDLQRetentionJob(cron.DLQRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewDLQRepository(dbClient.DB()),
		Retention:  cfg.Cron.DLQRetention,
	})
	if err != nil {
		return nil, err
	}
	cartJob, err := cron.NewIdleCartJob(cron.IdleCartJobParams{
		Logger:     logg,
		Repository: cart.NewRepository(dbClient.DB()),
		IdleTTL:    cfg.Cron.CartIdleTTL,
	})
	if err != nil {
		return nil, err
	}
	registry, err := cron.NewRegistry(outboxJob, dlqJob, cartJob)
	if err != nil {
		return nil, err
	}
	var names []string
	if only = strings.TrimSpace(only); only != "" {
		names = strings.Split(only, ",")
	}
	return registry.Select(names...)
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
