package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/starfall-ai/starfall-backend/api/middleware"
	"github.com/starfall-ai/starfall-backend/api/responses"
	"github.com/starfall-ai/starfall-backend/internal/ledger"
	pkgerrors "github.com/starfall-ai/starfall-backend/pkg/errors"
	"github.com/starfall-ai/starfall-backend/pkg/logger"
)

// BalanceGet returns the caller's star pools.
func BalanceGet(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing"))
			return
		}

		balance, err := svc.GetBalance(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}
