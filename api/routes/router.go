package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/papshop-backend/api/controllers"
	"github.com/angelmondragon/papshop-backend/api/middleware"
	"github.com/angelmondragon/papshop-backend/internal/cart"
	"github.com/angelmondragon/papshop-backend/internal/checkout"
	"github.com/angelmondragon/papshop-backend/internal/dashboard"
	"github.com/angelmondragon/papshop-backend/internal/inventory"
	"github.com/angelmondragon/papshop-backend/internal/orders"
	"github.com/angelmondragon/papshop-backend/pkg/config"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
	"github.com/angelmondragon/papshop-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface needs.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency redis.IdempotencyStore
	Gatherer    prometheus.Gatherer

	Cart      cart.Service
	Checkout  checkout.Service
	Orders    orders.Service
	Inventory inventory.Service
	Dashboard dashboard.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Service.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.DB, p.Redis, logg))
	})
	r.Handle("/metrics", metricsHandler(p.Gatherer))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(p.Cart, logg))
			r.Delete("/", controllers.CartClear(p.Cart, logg))
			r.Get("/count", controllers.CartCount(p.Cart, logg))
			r.Post("/items", controllers.CartAddItem(p.Cart, logg))
			r.Put("/items/{lineId}", controllers.CartUpdateItem(p.Cart, logg))
			r.Delete("/items/{lineId}", controllers.CartRemoveItem(p.Cart, logg))
		})

		r.With(middleware.Idempotent(p.Idempotency, middleware.CheckoutReplay, logg)).
			Post("/checkout", controllers.Checkout(p.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrdersList(p.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(p.Orders, logg))
			r.With(middleware.Idempotent(p.Idempotency, middleware.CancelReplay, logg)).
				Post("/{orderId}/cancel", controllers.OrderCancel(p.Orders, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.RoleAdmin, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminOrdersList(p.Orders, logg))
				r.Put("/{orderId}/status", controllers.AdminOrderUpdateStatus(p.Orders, logg))
			})
			r.Route("/stock", func(r chi.Router) {
				r.Post("/import", controllers.AdminStockImport(p.Inventory, logg))
				r.Post("/export", controllers.AdminStockExport(p.Inventory, logg))
				r.Get("/{productId}/movements", controllers.AdminStockMovements(p.Inventory, logg))
				r.Get("/{productId}/replay", controllers.AdminStockReplay(p.Inventory, logg))
			})
			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/stats", controllers.AdminDashboardStats(p.Dashboard, logg))
				r.Get("/recent-orders", controllers.AdminDashboardRecentOrders(p.Dashboard, logg))
			})
		})
	})

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
