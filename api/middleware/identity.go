package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/starfall-ai/starfall-backend/api/responses"
	pkgerrors "github.com/starfall-ai/starfall-backend/pkg/errors"
	"github.com/starfall-ai/starfall-backend/pkg/logger"
)

const userIDHeader = "X-User-Id"

// Identity seeds the request context with the caller identity asserted
// by the gateway in front of this service. The gateway owns
// authentication; this service only requires that the header carries a
// well-formed user id.
func Identity(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(userIDHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller identity"))
				return
			}

			userID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "malformed caller identity"))
				return
			}

			ctx := WithUserID(r.Context(), userID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, userID.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
