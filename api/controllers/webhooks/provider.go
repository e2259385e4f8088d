package webhooks

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starfall-ai/starfall-backend/api/responses"
	"github.com/starfall-ai/starfall-backend/internal/provider"
	"github.com/starfall-ai/starfall-backend/internal/reconcile"
	"github.com/starfall-ai/starfall-backend/pkg/config"
	pkgerrors "github.com/starfall-ai/starfall-backend/pkg/errors"
	"github.com/starfall-ai/starfall-backend/pkg/logger"
	"github.com/starfall-ai/starfall-backend/pkg/metrics"
	"github.com/starfall-ai/starfall-backend/pkg/redis"
)

const (
	callbackBodyLimit int64 = 64 * 1024
	callbackGuardTTL        = 24 * time.Hour
	callbackScope           = "provider-callback"
)

// ProviderCallback ingests completion notifications from the generation
// provider. Once the shared secret checks out the response is always an
// ack: duplicates, unknown tasks, and internal reconciliation failures
// surface through metrics and logs, never back to the provider, so it
// has no reason to retry forever. The poll fallback covers anything
// lost here.
func ProviderCallback(
	rec reconcile.Service,
	guard redis.IdempotencyStore,
	cfg config.ProviderConfig,
	m *metrics.SettlementMetrics,
	logg *logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if rec == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}

		if !callbackAuthorized(r, cfg.CallbackSecret) {
			m.IncWebhookDelivery("unauthorized")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid callback credentials"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, callbackBodyLimit))
		if err != nil {
			m.IncWebhookDelivery("unreadable")
			ack(w)
			return
		}

		status, err := provider.ParseCallback(payload)
		if err != nil {
			m.IncWebhookDelivery("malformed")
			if logg != nil {
				logg.Warn(ctx, "discarding malformed provider callback: "+err.Error())
			}
			ack(w)
			return
		}

		// Cheap front filter for redelivery storms; the reconciler
		// remains the authority on duplicates.
		guardKey := ""
		if guard != nil && status.ProviderTaskID != "" {
			guardKey = guard.IdempotencyKey(callbackScope, status.ProviderTaskID+":"+string(status.State))
			fresh, guardErr := guard.SetNX(ctx, guardKey, "1", callbackGuardTTL)
			if guardErr == nil && !fresh {
				m.IncWebhookDelivery("replayed")
				ack(w)
				return
			}
		}

		outcome, recErr := rec.Reconcile(ctx, reconcile.Signal{
			ProviderTaskID: status.ProviderTaskID,
			State:          status.State,
			ResultURLs:     status.ResultURLs,
			FailureMessage: status.FailureMessage,
		})
		if recErr != nil && guardKey != "" {
			// Let a redelivery retry what we could not settle.
			_ = guard.Del(ctx, guardKey)
		}

		m.IncWebhookDelivery(string(outcome))
		ack(w)
	}
}

func ack(w http.ResponseWriter) {
	responses.WriteSuccess(w, map[string]string{"status": "received"})
}

func callbackAuthorized(r *http.Request, secret string) bool {
	if secret == "" {
		return false
	}

	candidate := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(candidate), "bearer ") {
		candidate = strings.TrimSpace(candidate[7:])
	}
	if candidate == "" {
		candidate = strings.TrimSpace(r.URL.Query().Get("secret"))
	}
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(secret)) == 1
}
