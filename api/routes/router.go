package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starfall-ai/starfall-backend/api/controllers"
	webhookcontrollers "github.com/starfall-ai/starfall-backend/api/controllers/webhooks"
	"github.com/starfall-ai/starfall-backend/api/middleware"
	"github.com/starfall-ai/starfall-backend/internal/jobs"
	"github.com/starfall-ai/starfall-backend/internal/ledger"
	"github.com/starfall-ai/starfall-backend/internal/reconcile"
	"github.com/starfall-ai/starfall-backend/pkg/config"
	"github.com/starfall-ai/starfall-backend/pkg/db"
	"github.com/starfall-ai/starfall-backend/pkg/logger"
	"github.com/starfall-ai/starfall-backend/pkg/metrics"
	"github.com/starfall-ai/starfall-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	jobsService jobs.Service,
	ledgerService ledger.Service,
	reconciler reconcile.Service,
	settlementMetrics *metrics.SettlementMetrics,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/provider", webhookcontrollers.ProviderCallback(reconciler, redisClient, cfg.Provider, settlementMetrics, logg))
	})

	r.Route("/api/v1/generations", func(r chi.Router) {
		r.Use(middleware.Identity(logg))
		r.Post("/", controllers.GenerationCreate(jobsService, logg))
		r.Get("/{jobId}", controllers.GenerationGet(jobsService, logg))
		r.Post("/{jobId}/cancel", controllers.GenerationCancel(jobsService, logg))
	})

	r.With(middleware.Identity(logg)).Get("/api/v1/balance", controllers.BalanceGet(ledgerService, logg))

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.Admin, logg))

		r.Route("/users/{userId}", func(r chi.Router) {
			r.Post("/grants", controllers.AdminGrantStars(ledgerService, logg))
			r.Post("/refunds", controllers.AdminRefundStars(ledgerService, logg))
			r.Post("/subscription/expire", controllers.AdminExpireSubscription(ledgerService, logg))
		})
	})

	return r
}
