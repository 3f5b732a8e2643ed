package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/papshop-backend/api/routes"
	"github.com/angelmondragon/papshop-backend/internal/cart"
	"github.com/angelmondragon/papshop-backend/internal/checkout"
	"github.com/angelmondragon/papshop-backend/internal/dashboard"
	"github.com/angelmondragon/papshop-backend/internal/inventory"
	"github.com/angelmondragon/papshop-backend/internal/orders"
	"github.com/angelmondragon/papshop-backend/pkg/bootstrap"
	"github.com/angelmondragon/papshop-backend/pkg/config"
	"github.com/angelmondragon/papshop-backend/pkg/metrics"
	"github.com/angelmondragon/papshop-backend/pkg/outbox"
	"github.com/angelmondragon/papshop-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	proc, err := bootstrap.Open(context.Background(), "api")
	if err != nil {
		bootstrap.Fail("api", "open", err)
	}
	defer proc.Close()

	handler, err := buildRouter(context.Background(), proc)
	if err != nil {
		proc.Close()
		bootstrap.Fail("api", "router", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = proc.Config.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := proc.SignalContext()
	defer stop()
	ctx = proc.Logger.WithFields(ctx, map[string]any{
		"addr":         server.Addr,
		"lock_backend": proc.Config.Inventory.LockBackend,
	})
	proc.Logger.Info(ctx, "api listening")

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			proc.Logger.Error(ctx, "api server stopped", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			proc.Logger.Error(ctx, "graceful shutdown failed", err)
		}
		proc.Logger.Info(ctx, "api stopped")
	}
}

// buildRouter wires the order and inventory services behind the HTTP routes.
// Without Redis the api still serves, minus idempotent replays and the
// dashboard cache.
func buildRouter(ctx context.Context, proc *bootstrap.Process) (http.Handler, error) {
	cfg, logg, dbClient := proc.Config, proc.Logger, proc.DB

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		var err error
		if redisClient, err = proc.Redis(ctx); err != nil {
			return nil, err
		}
	} else {
		logg.Warn(ctx, "redis not configured; idempotency and dashboard cache disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	inventoryMetrics := metrics.NewInventoryMetrics(registry)

	locker, err := productLocker(cfg.Inventory, redisClient, inventoryMetrics, proc)
	if err != nil {
		return nil, err
	}
	emitter := outbox.NewWriter(outbox.NewStore(dbClient.DB()), logg)

	ledger, err := inventory.NewService(inventory.ServiceParams{
		Repository: inventory.NewRepository(dbClient.DB()),
		TxRunner:   dbClient,
		Locker:     locker,
		Outbox:     emitter,
		Metrics:    inventoryMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}

	cartRepo := cart.NewRepository(dbClient.DB())
	cartService, err := cart.NewService(cartRepo, dbClient)
	if err != nil {
		return nil, err
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(orders.ServiceParams{
		Repository: ordersRepo,
		TxRunner:   dbClient,
		Inventory:  ledger,
		Outbox:     emitter,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		TxRunner:    dbClient,
		Carts:       cartRepo,
		Orders:      ordersRepo,
		Inventory:   ledger,
		Outbox:      emitter,
		Metrics:     metrics.NewCheckoutMetrics(registry),
		Logger:      logg,
		MaxAttempts: cfg.Checkout.MaxAttempts,
		RetryBase:   cfg.Checkout.RetryBase,
	})
	if err != nil {
		return nil, err
	}

	params := routes.RouterParams{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		Gatherer:  registry,
		Cart:      cartService,
		Checkout:  checkoutService,
		Orders:    ordersService,
		Inventory: ledger,
	}
	var cache redis.CacheStore
	if redisClient != nil {
		params.Redis = redisClient
		params.Idempotency = redisClient
		cache = redisClient
	}
	if params.Dashboard, err = dashboard.NewService(dashboard.NewRepository(dbClient.DB()), cache, cfg.Dashboard.CacheTTL, logg); err != nil {
		return nil, err
	}
	return routes.NewRouter(params), nil
}

func productLocker(cfg config.InventoryConfig, redisClient *redis.Client, m *metrics.InventoryMetrics, proc *bootstrap.Process) (inventory.Locker, error) {
	if !strings.EqualFold(cfg.LockBackend, config.LockBackendRedis) {
		return inventory.NewMemoryLocker(cfg.LockTimeout, m), nil
	}
	if redisClient == nil {
		return nil, errors.New("redis lock backend selected but redis is not configured")
	}
	locker, err := inventory.NewRedisLocker(inventory.RedisLockerParams{
		Store:   redisClient,
		TTL:     cfg.LockTTL,
		Timeout: cfg.LockTimeout,
		Metrics: m,
		Logger:  proc.Logger,
	})
	if err != nil {
		return nil, err
	}
	return locker, nil
}
