package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/storefront-checkout/internal/notifications"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-checkout/pkg/pubsub"
	"github.com/angelmondragon/storefront-checkout/pkg/redis"
	"github.com/angelmondragon/storefront-checkout/pkg/telegram"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == config.LogFormatConsole,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Telegram.Enabled() {
		logg.Error(ctx, "telegram notifications are not configured", errors.New("bot token and chat id are required"))
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

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.RoleSubscriber, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	claims, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency manager", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	bot, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
		telegram.WithBaseURL(cfg.Telegram.BaseURL),
		telegram.WithTimeout(cfg.Telegram.Timeout),
		telegram.WithStateChange(func(from, to gobreaker.State) {
			logg.Warn(logg.WithFields(ctx, map[string]any{"from": from.String(), "to": to.String()}), "telegram circuit state changed")
		}),
	)
	if err != nil {
		logg.Error(ctx, "failed to create telegram client", err)
		os.Exit(1)
	}

	consumer, err := notifications.NewConsumer(notifications.ConsumerParams{
		Subscription: pubsubClient.OrdersSubscription(),
		Sender:       bot,
		Claims:       claims,
		Decoders:     registry.NewOrderDecoders(),
		Metrics:      metrics.NewNotificationMetrics(reg),
		Logger:       logg,
		MaxAttempts:  cfg.Telegram.MaxAttempts,
	})
	if err != nil {
		logg.Error(ctx, "failed to create notification consumer", err)
		os.Exit(1)
	}

	svc, err := NewService(ServiceParams{
		Logger:               logg,
		Redis:                redisClient,
		PubSub:               pubsubClient,
		NotificationConsumer: consumer,
		MetricsServer:        metrics.NewServer(cfg.App.MetricsPort, reg),
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	logg.Info(logg.WithField(ctx, "subscription", cfg.PubSub.OrdersSubscription), "starting worker")
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped with error", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "worker shutting down gracefully")
}
