package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/starfall-ai/starfall-backend/api/routes"
	"github.com/starfall-ai/starfall-backend/internal/jobs"
	"github.com/starfall-ai/starfall-backend/internal/ledger"
	"github.com/starfall-ai/starfall-backend/internal/provider"
	"github.com/starfall-ai/starfall-backend/internal/reconcile"
	"github.com/starfall-ai/starfall-backend/pkg/breaker"
	"github.com/starfall-ai/starfall-backend/pkg/config"
	"github.com/starfall-ai/starfall-backend/pkg/db"
	"github.com/starfall-ai/starfall-backend/pkg/logger"
	"github.com/starfall-ai/starfall-backend/pkg/metrics"
	"github.com/starfall-ai/starfall-backend/pkg/migrate"
	"github.com/starfall-ai/starfall-backend/pkg/redis"
)

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

	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	circuit := breaker.New(breaker.Options{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		FailureWindow:    cfg.Breaker.FailureWindow,
		OpenDuration:     cfg.Breaker.OpenDuration,
	})

	providerClient, err := provider.NewHTTPClient(cfg.Provider)
	if err != nil {
		logg.Error(context.Background(), "failed to create provider client", err)
		os.Exit(1)
	}

	jobsRepo := jobs.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())

	ledgerService, err := ledger.NewService(dbClient, ledgerRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	jobsService, err := jobs.NewService(jobsRepo, providerClient, circuit, settlementMetrics, logg, cfg.Provider)
	if err != nil {
		logg.Error(context.Background(), "failed to create job service", err)
		os.Exit(1)
	}

	reconciler, err := reconcile.NewService(dbClient, jobsRepo, ledgerService, settlementMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			jobsService,
			ledgerService,
			reconciler,
			settlementMetrics,
			prometheus.DefaultGatherer,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
