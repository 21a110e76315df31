package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/haulbid-backend/api/controllers"
	"github.com/angelmondragon/haulbid-backend/api/middleware"
	"github.com/angelmondragon/haulbid-backend/internal/auctions"
	"github.com/angelmondragon/haulbid-backend/internal/bids"
	"github.com/angelmondragon/haulbid-backend/internal/cascade"
	"github.com/angelmondragon/haulbid-backend/internal/livesync"
	"github.com/angelmondragon/haulbid-backend/pkg/config"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/haulbid-backend/pkg/redis"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Deps bundles what the router serves.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          pinger
	Redis       *pkgredis.Client
	// Idempotency overrides the replay store; nil means Redis.
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer
	Auctions    auctions.Service
	Engine      bids.Engine
	Coordinator cascade.Coordinator
	Live        *livesync.Server
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var (
		redisPinger pinger
		idempotency pkgredis.IdempotencyStore
		limiter     = middleware.RateLimit(middleware.NewRateLimitPolicy("cascade", 0, 0, 0), nil, logg)
	)
	if deps.Redis != nil {
		redisPinger = deps.Redis
		idempotency = deps.Redis
		policy := middleware.NewRateLimitPolicy("cascade", cfg.Cascade.RateLimitWindow, cfg.Cascade.RateLimitIP, cfg.Cascade.RateLimitActor)
		limiter = middleware.RateLimit(policy, deps.Redis, logg)
	}
	if deps.Idempotency != nil {
		idempotency = deps.Idempotency
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, redisPinger))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWT, logg))

		r.Get("/live", controllers.AdminLive(deps.Live, logg))

		r.Route("/auctions", func(r chi.Router) {
			r.With(middleware.Idempotency(idempotency, logg)).Post("/", controllers.AdminCreateAuction(deps.Auctions, logg))
			r.Get("/", controllers.AdminListAuctions(deps.Auctions, logg))
			r.Route("/{auctionId}", func(r chi.Router) {
				r.Get("/", controllers.AdminAuctionDetail(deps.Auctions, logg))
				r.Patch("/", controllers.AdminUpdateAuction(deps.Auctions, logg))
				r.With(middleware.Idempotency(idempotency, logg)).Post("/status", controllers.AdminChangeAuctionStatus(deps.Auctions, logg))
				r.With(middleware.Idempotency(idempotency, logg)).Put("/bids", controllers.AdminRecordBid(deps.Engine, logg))
				r.With(limiter).Delete("/", controllers.AdminDeleteAuction(deps.Coordinator, logg))
			})
		})

		r.Route("/bids/{bidId}", func(r chi.Router) {
			r.Patch("/", controllers.AdminUpdateBid(deps.Engine, logg))
			r.Delete("/", controllers.AdminDeleteBid(deps.Engine, logg))
		})

		r.With(limiter).Delete("/consigners/{profileId}", controllers.AdminDeleteConsigner(deps.Coordinator, logg))
		r.With(limiter).Delete("/drivers/{profileId}", controllers.AdminDeleteDriver(deps.Coordinator, logg))
	})

	return r
}
