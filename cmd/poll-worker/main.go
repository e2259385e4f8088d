package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/starfall-ai/starfall-backend/internal/jobs"
	"github.com/starfall-ai/starfall-backend/internal/ledger"
	"github.com/starfall-ai/starfall-backend/internal/poll"
	"github.com/starfall-ai/starfall-backend/internal/provider"
	"github.com/starfall-ai/starfall-backend/internal/reconcile"
	"github.com/starfall-ai/starfall-backend/pkg/config"
	"github.com/starfall-ai/starfall-backend/pkg/db"
	"github.com/starfall-ai/starfall-backend/pkg/logger"
	"github.com/starfall-ai/starfall-backend/pkg/metrics"
	"github.com/starfall-ai/starfall-backend/pkg/migrate"
	"github.com/starfall-ai/starfall-backend/pkg/redis"
)

const lockKeyFormat = "sf:poll-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "poll-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "poll-worker",
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

	reconciler, err := reconcile.NewService(dbClient, jobsRepo, ledgerService, settlementMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	settlementJob, err := poll.NewSettlementJob(poll.SettlementJobParams{
		Jobs:       jobsRepo,
		Upstream:   providerClient,
		Reconciler: reconciler,
		Logger:     logg,
		Config:     cfg.Poll,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement sweep", err)
		os.Exit(1)
	}

	lock, err := poll.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Poll.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create poll lock", err)
		os.Exit(1)
	}

	service, err := poll.NewService(poll.ServiceParams{
		Logger:   logg,
		Registry: poll.NewRegistry(settlementJob),
		Lock:     lock,
		Metrics:  settlementMetrics,
		Interval: cfg.Poll.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create poll service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting poll worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "poll worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "poll worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
