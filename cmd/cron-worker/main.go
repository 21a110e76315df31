package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/haulbid-backend/internal/auctions"
	"github.com/angelmondragon/haulbid-backend/internal/audit"
	"github.com/angelmondragon/haulbid-backend/internal/bids"
	"github.com/angelmondragon/haulbid-backend/internal/cron"
	"github.com/angelmondragon/haulbid-backend/internal/notifications"
	"github.com/angelmondragon/haulbid-backend/internal/profiles"
	"github.com/angelmondragon/haulbid-backend/internal/trips"
	"github.com/angelmondragon/haulbid-backend/pkg/changefeed"
	"github.com/angelmondragon/haulbid-backend/pkg/config"
	"github.com/angelmondragon/haulbid-backend/pkg/db"
	"github.com/angelmondragon/haulbid-backend/pkg/instance"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
	"github.com/angelmondragon/haulbid-backend/pkg/metrics"
	"github.com/angelmondragon/haulbid-backend/pkg/migrate"
	"github.com/angelmondragon/haulbid-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Fields:      map[string]any{"env": cfg.App.Env, "instance": instance.ID("cron-0")},
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

	if err := migrate.AutoRun(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to auto-run migrations", err)
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

	// The worker only publishes; live viewers listen in the api process.
	feed, err := changefeed.New(cfg.ChangeFeed, redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create change feed", err)
		os.Exit(1)
	}
	defer func() {
		if err := feed.Close(); err != nil {
			logg.Error(context.Background(), "error closing change feed", err)
		}
	}()

	gormDB := dbClient.DB()
	auctionRepo := auctions.NewRepository(gormDB)
	profileRepo := profiles.NewRepository(gormDB)
	auditRepo := audit.NewRepository(gormDB)
	notificationRepo := notifications.NewRepository(gormDB)

	auctionService, err := auctions.NewService(auctions.ServiceParams{
		Tx:            dbClient,
		Repo:          auctionRepo,
		Profiles:      profileRepo,
		Trips:         trips.NewRepository(gormDB),
		Audit:         auditRepo,
		Notifications: notificationRepo,
		Feed:          feed,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auction service", err)
		os.Exit(1)
	}

	engine, err := bids.NewEngine(bids.EngineParams{
		Tx:            dbClient,
		Auctions:      auctionRepo,
		Bids:          bids.NewRepository(gormDB),
		Profiles:      profileRepo,
		Audit:         auditRepo,
		Notifications: notificationRepo,
		Feed:          feed,
		Logger:        logg,
		Metrics:       metrics.NewEngineMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bid engine", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewAuctionExpiryJob(cron.AuctionExpiryJobParams{
		Logger:   logg,
		Auctions: auctionService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auction expiry job", err)
		os.Exit(1)
	}
	reconcileJob, err := cron.NewAggregateReconcileJob(cron.AggregateReconcileJobParams{
		Logger:   logg,
		Auctions: auctionService,
		Engine:   engine,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create aggregate reconcile job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron:"+lockEnv(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	registry.Register(expiryJob, cfg.Cron.Interval)
	registry.Register(reconcileJob, cfg.Cron.ReconcileInterval)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metricsCollector,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
