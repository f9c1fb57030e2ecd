package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-checkout/api/controllers"
	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/delivery"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/redis"
)

const (
	sessionOpenWindow    = time.Minute
	sessionOpenIPLimit   = 60
	sessionOpenUserLimit = 20
)

// Dependencies groups everything the API routes serve. Redis and Metrics may be nil.
type Dependencies struct {
	DB          controllers.Pinger
	Redis       *redis.Client
	HTTPMetrics *metrics.HTTPMetrics
	MetricsView http.Handler
	Cart        cart.Service
	Checkout    controllers.CheckoutFlow
	Orders      controllers.OrderReader
	Rates       *delivery.Table
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	ready := map[string]controllers.Pinger{"db": deps.DB}
	var (
		idempotent       = passthrough
		submitIdempotent = passthrough
		openLimit        = passthrough
	)
	if deps.Redis != nil {
		ready["redis"] = deps.Redis
		idempotent = middleware.Idempotency(deps.Redis, middleware.DefaultIdempotencyTTL, logg)
		submitIdempotent = middleware.Idempotency(deps.Redis, middleware.SubmitIdempotencyTTL, logg)
		openLimit = middleware.RateLimit(
			middleware.NewRateLimitPolicy("checkout_open", sessionOpenWindow, sessionOpenIPLimit, sessionOpenUserLimit),
			deps.Redis,
			logg,
		)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, ready, logg))
	})
	if deps.MetricsView != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsView)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/delivery/rates", controllers.DeliveryRates(deps.Rates, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.User(logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(deps.Cart, logg))
				r.Delete("/", controllers.CartClear(deps.Cart, logg))
				r.With(idempotent).Post("/items", controllers.CartAddItem(deps.Cart, logg))
				r.Patch("/items/{productId}", controllers.CartSetQuantity(deps.Cart, logg))
				r.Delete("/items/{productId}", controllers.CartRemoveItem(deps.Cart, logg))
			})

			r.Route("/checkout/sessions", func(r chi.Router) {
				r.With(openLimit, idempotent).Post("/", controllers.CheckoutOpen(deps.Checkout, logg))
				r.Route("/{sessionId}", func(r chi.Router) {
					r.Get("/", controllers.CheckoutGet(deps.Checkout, logg))
					r.Delete("/", controllers.CheckoutCancel(deps.Checkout, logg))
					r.Get("/quote", controllers.CheckoutQuote(deps.Checkout, logg))
					r.Put("/contact", controllers.CheckoutContact(deps.Checkout, logg))
					r.Put("/delivery", controllers.CheckoutDelivery(deps.Checkout, logg))
					r.Post("/back", controllers.CheckoutBack(deps.Checkout, logg))
					r.Post("/promo", controllers.CheckoutApplyPromo(deps.Checkout, logg))
					r.Delete("/promo", controllers.CheckoutRemovePromo(deps.Checkout, logg))
					r.Put("/payment-method", controllers.CheckoutPaymentMethod(deps.Checkout, logg))
					r.With(submitIdempotent).Post("/submit", controllers.CheckoutSubmit(deps.Checkout, logg))
				})
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.OrdersList(deps.Orders, logg))
				r.Get("/{orderId}", controllers.OrderDetail(deps.Orders, logg))
			})
		})
	})

	return r
}

func passthrough(next http.Handler) http.Handler { return next }
