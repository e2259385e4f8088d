package controllers

import (
	"net/http"

	"github.com/starfall-ai/starfall-backend/api/responses"
	"github.com/starfall-ai/starfall-backend/pkg/config"
	"github.com/starfall-ai/starfall-backend/pkg/db"
	pkgerrors "github.com/starfall-ai/starfall-backend/pkg/errors"
	"github.com/starfall-ai/starfall-backend/pkg/logger"
	"github.com/starfall-ai/starfall-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Starfall-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("X-Starfall-Env", cfg.App.Env)

		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
				return
			}
		}
		if redisP != nil {
			if err := redisP.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
