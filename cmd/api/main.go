package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/storefront-checkout/api/routes"
	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/checkout"
	"github.com/angelmondragon/storefront-checkout/internal/delivery"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/internal/payments"
	"github.com/angelmondragon/storefront-checkout/internal/promo"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/migrate"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == config.LogFormatConsole,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	var redisClient *redis.Client
	if redisConfigured(cfg.Redis) {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		if !cfg.App.IsDev() {
			logg.Error(ctx, "redis is required outside dev", errors.New("redis not configured"))
			os.Exit(1)
		}
		logg.Warn(ctx, "redis not configured; using in-memory sessions without rate limits")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	cartService, err := cart.NewService(cart.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		logg.Error(ctx, "failed to create cart service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		dbClient,
		outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create order service", err)
		os.Exit(1)
	}

	dispatcher, err := payments.NewDispatcher(
		payments.NewSimulatedGateway(cfg.Checkout.CardSettleDelay, cfg.Checkout.WalletSettleDelay),
		logg,
		payments.WithMetrics(checkoutMetrics),
		payments.WithTimeout(cfg.Checkout.GatewayTimeout),
	)
	if err != nil {
		logg.Error(ctx, "failed to create payment dispatcher", err)
		os.Exit(1)
	}

	sessions, err := sessionStore(cfg.Checkout, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to create checkout session store", err)
		os.Exit(1)
	}

	rates := delivery.NewTable()
	deps := checkout.Deps{
		Store:      sessions,
		Cart:       cartService,
		Promos:     promo.NewDefaultRegistry(),
		Rates:      rates,
		Dispatcher: dispatcher,
		Orders:     orderService,
		Metrics:    checkoutMetrics,
		Logger:     logg,
		ResetDelay: cfg.Checkout.SuccessResetDelay,
	}
	if redisClient != nil {
		deps.PromoLimit = promo.NewLimiter(redisClient, redis.PromoAttemptScope, cfg.Checkout.PromoLimit, cfg.Checkout.PromoWindow)
	}
	machine, err := checkout.NewMachine(deps)
	if err != nil {
		logg.Error(ctx, "failed to create checkout machine", err)
		os.Exit(1)
	}
	defer machine.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"addr":          addr,
		"db_driver":     dbClient.Driver(),
		"session_store": cfg.Checkout.SessionStore,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:          dbClient,
			Redis:       redisClient,
			HTTPMetrics: metrics.NewHTTPMetrics(registry),
			MetricsView: metrics.Handler(registry),
			Cart:        cartService,
			Checkout:    machine,
			Orders:      orderService,
			Rates:       rates,
		}),
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(logCtx, "api server shutdown failed", err)
	}
}

func redisConfigured(cfg config.RedisConfig) bool {
	return strings.TrimSpace(cfg.URL) != "" || strings.TrimSpace(cfg.Address) != ""
}

// sessionStore keeps sessions in Redis unless memory is configured or Redis is absent.
func sessionStore(cfg config.CheckoutConfig, redisClient *redis.Client) (checkout.Store, error) {
	if redisClient == nil || !cfg.UsesRedisSessions() {
		return checkout.NewMemoryStore(cfg.SessionTTL), nil
	}
	return checkout.NewRedisStore(redisClient, cfg.SessionTTL)
}
