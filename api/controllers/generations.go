package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starfall-ai/starfall-backend/api/middleware"
	"github.com/starfall-ai/starfall-backend/api/responses"
	"github.com/starfall-ai/starfall-backend/api/validators"
	"github.com/starfall-ai/starfall-backend/internal/jobs"
	"github.com/starfall-ai/starfall-backend/internal/pricing"
	"github.com/starfall-ai/starfall-backend/pkg/db/models"
	pkgerrors "github.com/starfall-ai/starfall-backend/pkg/errors"
	"github.com/starfall-ai/starfall-backend/pkg/logger"
)

type generationOptionsPayload struct {
	Family string `json:"family" validate:"required,oneof=photo video motion_control lipsync"`

	// Photo.
	Quality string `json:"quality,omitempty"`

	// Video clips.
	DurationSec int    `json:"duration_sec,omitempty" validate:"omitempty,gt=0"`
	Resolution  string `json:"resolution,omitempty"`
	Audio       bool   `json:"audio,omitempty"`
	QualityTier string `json:"quality_tier,omitempty"`
	Extend      bool   `json:"extend,omitempty"`

	// Per-second families.
	RawDurationSec   float64 `json:"raw_duration_sec,omitempty" validate:"omitempty,gt=0"`
	AudioDurationSec float64 `json:"audio_duration_sec,omitempty" validate:"omitempty,gt=0"`
}

func (p generationOptionsPayload) toPricingOptions() pricing.Options {
	switch p.Family {
	case "photo":
		return pricing.PhotoOptions{Quality: p.Quality}
	case "video":
		return pricing.VideoOptions{
			DurationSec: p.DurationSec,
			Resolution:  p.Resolution,
			Audio:       p.Audio,
			QualityTier: p.QualityTier,
			Extend:      p.Extend,
		}
	case "motion_control":
		return pricing.MotionControlOptions{
			RawDurationSec: p.RawDurationSec,
			Resolution:     p.Resolution,
		}
	default:
		return pricing.LipSyncOptions{AudioDurationSec: p.AudioDurationSec}
	}
}

type createGenerationPayload struct {
	ModelID        string                   `json:"model_id" validate:"required"`
	IdempotencyKey string                   `json:"idempotency_key" validate:"required,max=255"`
	Options        generationOptionsPayload `json:"options" validate:"required"`
	Input          map[string]any           `json:"input"`
}

type jobResponse struct {
	ID             uuid.UUID  `json:"id"`
	ModelID        string     `json:"model_id"`
	SKU            string     `json:"sku"`
	PriceStars     int        `json:"price_stars"`
	PricingVersion string     `json:"pricing_version"`
	Status         string     `json:"status"`
	ResultURLs     []string   `json:"result_urls,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func newJobResponse(job *models.GenerationJob) jobResponse {
	return jobResponse{
		ID:             job.ID,
		ModelID:        job.ModelID,
		SKU:            job.SKU,
		PriceStars:     job.PriceStars,
		PricingVersion: job.PricingVersion,
		Status:         string(job.Status),
		ResultURLs:     job.ResultURLs,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.CompletedAt,
	}
}

// GenerationCreate prices and submits one generation job.
func GenerationCreate(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "job service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing"))
			return
		}

		var payload createGenerationPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		job, err := svc.Submit(ctx, jobs.SubmitInput{
			UserID:         userID,
			ModelID:        payload.ModelID,
			Options:        payload.Options.toPricingOptions(),
			ProviderInput:  payload.Input,
			IdempotencyKey: payload.IdempotencyKey,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newJobResponse(job))
	}
}

// GenerationGet returns one of the caller's jobs.
func GenerationGet(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "job service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing"))
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid job id"))
			return
		}

		job, err := svc.Get(ctx, userID, jobID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newJobResponse(job))
	}
}

// GenerationCancel abandons a job that has not settled yet.
func GenerationCancel(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "job service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing"))
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid job id"))
			return
		}

		job, err := svc.Cancel(ctx, jobs.CancelInput{UserID: userID, JobID: jobID})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newJobResponse(job))
	}
}
