package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evergreen-market/storefront/api/controllers"
	"github.com/evergreen-market/storefront/api/middleware"
	authsvc "github.com/evergreen-market/storefront/internal/auth"
	cartsvc "github.com/evergreen-market/storefront/internal/cart"
	checkoutsvc "github.com/evergreen-market/storefront/internal/checkout"
	"github.com/evergreen-market/storefront/pkg/commerce"
	"github.com/evergreen-market/storefront/pkg/config"
	"github.com/evergreen-market/storefront/pkg/logger"
	"github.com/evergreen-market/storefront/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	commerceClient *commerce.Client,
	bridge *authsvc.Bridge,
	carts *cartsvc.Registry,
	orchestrator *checkoutsvc.Orchestrator,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, redisClient))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/sign-in", controllers.AuthSignIn(bridge, logg))
			r.Post("/sign-out", controllers.AuthSignOut(bridge, carts, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(carts, logg))
			r.Post("/items", controllers.CartAddItem(carts, logg))
			r.Put("/items/{itemKey}", controllers.CartUpdateItem(carts, logg))
			r.Delete("/items/{itemKey}", controllers.CartRemoveItem(carts, logg))
			r.Post("/clear", controllers.CartClear(carts, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", controllers.CheckoutBegin(orchestrator, logg))
			r.Get("/", controllers.CheckoutState(orchestrator, logg))
			r.Post("/acknowledge", controllers.CheckoutAcknowledge(orchestrator, logg))
			r.Post("/complete", controllers.CheckoutComplete(orchestrator, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductsList(commerceClient, logg))
			r.Get("/{productID}", controllers.ProductGet(commerceClient, logg))
		})

		r.Get("/orders", controllers.OrdersList(commerceClient, bridge, logg))
	})

	return r
}
