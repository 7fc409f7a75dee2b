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

	"github.com/angelmondragon/goodsin-backend/api/controllers"
	"github.com/angelmondragon/goodsin-backend/api/routes"
	"github.com/angelmondragon/goodsin-backend/internal/catalog"
	"github.com/angelmondragon/goodsin-backend/internal/deliveries"
	"github.com/angelmondragon/goodsin-backend/internal/scans"
	"github.com/angelmondragon/goodsin-backend/pkg/config"
	"github.com/angelmondragon/goodsin-backend/pkg/db"
	"github.com/angelmondragon/goodsin-backend/pkg/logger"
	"github.com/angelmondragon/goodsin-backend/pkg/metrics"
	"github.com/angelmondragon/goodsin-backend/pkg/migrate"
	"github.com/angelmondragon/goodsin-backend/pkg/outbox"
	"github.com/angelmondragon/goodsin-backend/pkg/pubsub"
	"github.com/angelmondragon/goodsin-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	readiness := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
	}
	if strings.TrimSpace(cfg.GCP.ProjectID) != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		readiness["pubsub"] = pubsubClient
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	scanLedger, err := scans.NewService(scans.NewRepository(dbClient.DB()), nil, cfg.Receiving.RecentScanWindow)
	if err != nil {
		logg.Error(context.Background(), "failed to create scan ledger", err)
		os.Exit(1)
	}

	resolver := catalog.NewCachedResolver(
		catalog.NewRepositoryResolver(catalog.NewRepository(dbClient.DB())),
		redisClient,
		cfg.Receiving.CatalogCacheTTL,
		logg,
	)

	deliveryService, err := deliveries.NewService(deliveries.ServiceParams{
		Tx:       dbClient,
		Repo:     deliveries.NewRepository(dbClient.DB()),
		Scans:    scanLedger,
		Outbox:   outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Resolver: resolver,
		Metrics:  metrics.NewReceivingMetrics(registry),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			Deliveries:  deliveryService,
			Scans:       scanLedger,
			Idempotency: redisClient,
			Gatherer:    registry,
			Readiness:   readiness,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "api server shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
