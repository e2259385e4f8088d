package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starfall-ai/starfall-backend/api/responses"
	"github.com/starfall-ai/starfall-backend/api/validators"
	"github.com/starfall-ai/starfall-backend/internal/ledger"
	"github.com/starfall-ai/starfall-backend/pkg/db/models"
	"github.com/starfall-ai/starfall-backend/pkg/enums"
	pkgerrors "github.com/starfall-ai/starfall-backend/pkg/errors"
	"github.com/starfall-ai/starfall-backend/pkg/logger"
)

type grantStarsPayload struct {
	Pool     string         `json:"pool" validate:"required,oneof=subscription package"`
	Amount   int            `json:"amount" validate:"required,gt=0"`
	Metadata map[string]any `json:"metadata"`
}

type refundStarsPayload struct {
	JobID          string `json:"job_id" validate:"omitempty,uuid"`
	ToSubscription int    `json:"to_subscription" validate:"min=0"`
	ToPackage      int    `json:"to_package" validate:"min=0"`
	Reason         string `json:"reason" validate:"required"`
}

type ledgerEntryResponse struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	Kind             string     `json:"kind"`
	Amount           int        `json:"amount"`
	FromSubscription int        `json:"from_subscription"`
	FromPackage      int        `json:"from_package"`
	JobID            *uuid.UUID `json:"job_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func newLedgerEntryResponse(entry *models.LedgerEntry) *ledgerEntryResponse {
	if entry == nil {
		return nil
	}
	return &ledgerEntryResponse{
		ID:               entry.ID,
		UserID:           entry.UserID,
		Kind:             string(entry.Kind),
		Amount:           entry.Amount,
		FromSubscription: entry.FromSubscription,
		FromPackage:      entry.FromPackage,
		JobID:            entry.GenerationJobID,
		CreatedAt:        entry.CreatedAt,
	}
}

func adminUserID(r *http.Request) (uuid.UUID, error) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return userID, nil
}

// AdminGrantStars credits a user's pool, typically on subscription
// renewal or package purchase.
func AdminGrantStars(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		userID, err := adminUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload grantStarsPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var metadata json.RawMessage
		if payload.Metadata != nil {
			metadata, _ = json.Marshal(payload.Metadata)
		}

		input := ledger.GrantInput{UserID: userID, Amount: payload.Amount, Metadata: metadata}
		var entry *models.LedgerEntry
		if enums.CreditPool(payload.Pool) == enums.CreditPoolSubscription {
			entry, err = svc.GrantSubscription(ctx, input)
		} else {
			entry, err = svc.GrantPackage(ctx, input)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newLedgerEntryResponse(entry))
	}
}

// AdminRefundStars restores stars to a user's pools, used for manual
// goodwill credits or compensating a disputed charge.
func AdminRefundStars(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		userID, err := adminUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload refundStarsPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input := ledger.RefundInput{
			UserID:         userID,
			ToSubscription: payload.ToSubscription,
			ToPackage:      payload.ToPackage,
			Reason:         payload.Reason,
		}
		if payload.JobID != "" {
			jobID, err := uuid.Parse(payload.JobID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid job id"))
				return
			}
			input.JobID = jobID
		}

		entry, err := svc.Refund(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newLedgerEntryResponse(entry))
	}
}

// AdminExpireSubscription zeroes a user's subscription pool at the end
// of a billing cycle.
func AdminExpireSubscription(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		userID, err := adminUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entry, err := svc.ExpireSubscription(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if entry == nil {
			responses.WriteSuccess(w, map[string]int{"expired_stars": 0})
			return
		}
		responses.WriteSuccess(w, newLedgerEntryResponse(entry))
	}
}
