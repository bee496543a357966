package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/evergreen-market/storefront/api/routes"
	authsvc "github.com/evergreen-market/storefront/internal/auth"
	cartsvc "github.com/evergreen-market/storefront/internal/cart"
	checkoutsvc "github.com/evergreen-market/storefront/internal/checkout"
	"github.com/evergreen-market/storefront/pkg/commerce"
	"github.com/evergreen-market/storefront/pkg/config"
	"github.com/evergreen-market/storefront/pkg/logger"
	"github.com/evergreen-market/storefront/pkg/metrics"
	"github.com/evergreen-market/storefront/pkg/redis"
	"github.com/evergreen-market/storefront/pkg/square"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	storefrontMetrics := metrics.NewStorefrontMetrics(promRegistry)

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	commerceClient, err := commerce.NewClient(
		cfg.Commerce.BaseURL,
		cfg.Commerce.RequestTimeout,
		commerce.WithMetrics(storefrontMetrics),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to build commerce client", err)
		os.Exit(1)
	}

	bridge, err := authsvc.NewBridge(commerceClient, redisClient, redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to build auth bridge", err)
		os.Exit(1)
	}

	mirror, err := cartsvc.NewMirror(redisClient, redisClient, cfg.Cart.MirrorTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to build cart mirror", err)
		os.Exit(1)
	}

	carts, err := cartsvc.NewRegistry(cartsvc.RegistryParams{
		Remote:  commerceClient,
		Mirror:  mirror,
		Creds:   bridge,
		Logger:  logg,
		Metrics: storefrontMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build cart registry", err)
		os.Exit(1)
	}

	creator, err := buildSessionCreator(cfg, logg, commerceClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build checkout session creator", err)
		os.Exit(1)
	}

	orchestrator, err := checkoutsvc.NewOrchestrator(checkoutsvc.OrchestratorParams{
		Carts:     carts,
		Creds:     bridge,
		Creator:   creator,
		Status:    commerceClient,
		ReturnURL: cfg.Checkout.ReturnURL,
		Logger:    logg,
		Metrics:   storefrontMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build checkout orchestrator", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"creator": cfg.Checkout.Creator(),
	})
	logg.Info(ctx, "starting storefront server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, redisClient, commerceClient, bridge, carts, orchestrator, promRegistry),
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "storefront server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	var closeErr error
	closeErr = multierr.Append(closeErr, server.Shutdown(shutdownCtx))
	closeErr = multierr.Append(closeErr, redisClient.Close())
	if closeErr != nil {
		logg.Error(ctx, "error during shutdown", closeErr)
		os.Exit(1)
	}
	logg.Info(ctx, "storefront server stopped")
}

// buildSessionCreator wires exactly one hosted-session path per deployment.
func buildSessionCreator(cfg *config.Config, logg *logger.Logger, commerceClient *commerce.Client) (checkoutsvc.SessionCreator, error) {
	if cfg.Checkout.Creator() == config.SessionCreatorSquare {
		squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
		if err != nil {
			return nil, err
		}
		return checkoutsvc.NewSquareSessionCreator(squareClient)
	}
	return checkoutsvc.NewBackendSessionCreator(commerceClient)
}
