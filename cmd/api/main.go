package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/haulbid-backend/api/routes"
	"github.com/angelmondragon/haulbid-backend/internal/auctions"
	"github.com/angelmondragon/haulbid-backend/internal/audit"
	"github.com/angelmondragon/haulbid-backend/internal/bids"
	"github.com/angelmondragon/haulbid-backend/internal/cascade"
	"github.com/angelmondragon/haulbid-backend/internal/livesync"
	"github.com/angelmondragon/haulbid-backend/internal/notifications"
	"github.com/angelmondragon/haulbid-backend/internal/profiles"
	"github.com/angelmondragon/haulbid-backend/internal/trips"
	"github.com/angelmondragon/haulbid-backend/pkg/changefeed"
	"github.com/angelmondragon/haulbid-backend/pkg/config"
	"github.com/angelmondragon/haulbid-backend/pkg/db"
	"github.com/angelmondragon/haulbid-backend/pkg/identity"
	"github.com/angelmondragon/haulbid-backend/pkg/instance"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
	"github.com/angelmondragon/haulbid-backend/pkg/metrics"
	"github.com/angelmondragon/haulbid-backend/pkg/migrate"
	"github.com/angelmondragon/haulbid-backend/pkg/pagination"
	"github.com/angelmondragon/haulbid-backend/pkg/redis"
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
		Format:      cfg.App.LogFormat,
		Fields:      map[string]any{"env": cfg.App.Env, "instance": instance.ID("local")},
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := metrics.NewEngineMetrics(registry)
	syncMetrics := metrics.NewSyncMetrics(registry)

	gormDB := dbClient.DB()
	auctionRepo := auctions.NewRepository(gormDB)
	bidRepo := bids.NewRepository(gormDB)
	profileRepo := profiles.NewRepository(gormDB)
	tripRepo := trips.NewRepository(gormDB)
	auditRepo := audit.NewRepository(gormDB)
	notificationRepo := notifications.NewRepository(gormDB)

	auctionService, err := auctions.NewService(auctions.ServiceParams{
		Tx:            dbClient,
		Repo:          auctionRepo,
		Profiles:      profileRepo,
		Trips:         tripRepo,
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
		Bids:          bidRepo,
		Profiles:      profileRepo,
		Audit:         auditRepo,
		Notifications: notificationRepo,
		Feed:          feed,
		Logger:        logg,
		Metrics:       engineMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bid engine", err)
		os.Exit(1)
	}

	identityClient := identity.NewClient(cfg.Identity)
	if !identityClient.Configured() {
		logg.Warn(context.Background(), "identity credentials missing, profile deletions will fail")
	}
	coordinator, err := cascade.NewCoordinator(cascade.Params{
		Tx:            dbClient,
		Auctions:      auctionRepo,
		Bids:          bidRepo,
		Trips:         tripRepo,
		Profiles:      profileRepo,
		Notifications: notificationRepo,
		Audit:         auditRepo,
		Identity:      identityClient,
		Feed:          feed,
		Logger:        logg,
		Metrics:       engineMetrics,
		Atomic:        cfg.Cascade.Atomic,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cascade coordinator", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := livesync.NewHub(logg, syncMetrics)
	go func() {
		if err := hub.Run(ctx, feed); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "change feed listener stopped", err)
		}
	}()

	live := &livesync.Server{
		Hub:        hub,
		Fetcher:    livesync.AuctionFetcher{Auctions: auctionService, PageSize: pagination.DefaultLimit},
		Policy:     livesync.PolicyFromConfig(cfg.Sync),
		SendBuffer: cfg.Sync.SendBuffer,
		Logger:     logg,
		Metrics:    syncMetrics,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.App.CORSOrigins),
		},
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithField(ctx, "addr", addr)
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Gatherer:    registry,
			Auctions:    auctionService,
			Engine:      engine,
			Coordinator: coordinator,
			Live:        live,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "api server shutdown failed", err)
		}
	}
}

// originChecker accepts same-origin upgrades and the configured CORS origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, candidate := range allowed {
			if strings.EqualFold(strings.TrimSpace(candidate), origin) {
				return true
			}
		}
		return false
	}
}
