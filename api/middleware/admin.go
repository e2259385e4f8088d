package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/starfall-ai/starfall-backend/api/responses"
	"github.com/starfall-ai/starfall-backend/pkg/config"
	pkgerrors "github.com/starfall-ai/starfall-backend/pkg/errors"
	"github.com/starfall-ai/starfall-backend/pkg/logger"
)

// AdminAuth gates the back-office routes behind a shared bearer token.
// With no token configured the whole surface is closed.
func AdminAuth(cfg config.AdminConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin surface disabled"))
				return
			}

			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
				raw = strings.TrimSpace(raw[7:])
			}
			if raw == "" || subtle.ConstantTimeCompare([]byte(raw), []byte(cfg.Token)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid admin token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
