package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/starfall-ai/starfall-backend/internal/pricing"
	"github.com/starfall-ai/starfall-backend/internal/provider"
	"github.com/starfall-ai/starfall-backend/pkg/breaker"
	"github.com/starfall-ai/starfall-backend/pkg/config"
	"github.com/starfall-ai/starfall-backend/pkg/db"
	"github.com/starfall-ai/starfall-backend/pkg/db/models"
	"github.com/starfall-ai/starfall-backend/pkg/enums"
	"github.com/starfall-ai/starfall-backend/pkg/errors"
	"github.com/starfall-ai/starfall-backend/pkg/flight"
	"github.com/starfall-ai/starfall-backend/pkg/logger"
	"github.com/starfall-ai/starfall-backend/pkg/metrics"
)

// providerKey is the circuit breaker key for the generation upstream.
// One upstream today; per-provider keys when there are more.
const providerKey = "generation-provider"

// SubmitInput is one user-initiated generation request.
type SubmitInput struct {
	UserID         uuid.UUID
	ModelID        string
	Options        pricing.Options
	ProviderInput  map[string]any
	IdempotencyKey string
}

// CancelInput identifies the job a user wants to abandon.
type CancelInput struct {
	UserID uuid.UUID
	JobID  uuid.UUID
}

// Service owns the generation job lifecycle up to the processing state:
// pricing, durable creation, guarded submission to the upstream, and
// cancellation. Terminal transitions driven by provider signals belong
// to the reconciler.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.GenerationJob, error)
	Get(ctx context.Context, userID, jobID uuid.UUID) (*models.GenerationJob, error)
	Cancel(ctx context.Context, input CancelInput) (*models.GenerationJob, error)
}

type service struct {
	repo     Repository
	upstream provider.Client
	circuit  *breaker.Breaker
	inflight flight.Group[*models.GenerationJob]
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
	cfg      config.ProviderConfig
}

// NewService wires the job service.
func NewService(
	repo Repository,
	upstream provider.Client,
	circuit *breaker.Breaker,
	m *metrics.SettlementMetrics,
	logg *logger.Logger,
	cfg config.ProviderConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("job repository required")
	}
	if upstream == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if circuit == nil {
		return nil, fmt.Errorf("circuit breaker required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	return &service{
		repo:     repo,
		upstream: upstream,
		circuit:  circuit,
		metrics:  m,
		logg:     logg,
		cfg:      cfg,
	}, nil
}

// Submit prices the request, creates a durable queued job, and pushes it
// to the upstream provider. Concurrent submissions sharing one
// idempotency key collapse to a single attempt; replays after the job
// exists return the stored job.
func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.GenerationJob, error) {
	if input.UserID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(input.ModelID) == "" {
		return nil, errors.New(errors.CodeValidation, "model id is required")
	}
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		return nil, errors.New(errors.CodeValidation, "idempotency key is required")
	}

	flightKey := input.UserID.String() + ":" + input.IdempotencyKey
	// The flight is shared by every caller collapsed onto it; the first
	// caller hanging up must not cancel the submission for the rest, so
	// the work runs on a context detached from request cancellation.
	detached := context.WithoutCancel(ctx)
	return s.inflight.Do(detached, flightKey, func(ctx context.Context) (*models.GenerationJob, error) {
		return s.submitOnce(ctx, input)
	})
}

func (s *service) submitOnce(ctx context.Context, input SubmitInput) (*models.GenerationJob, error) {
	existing, err := s.repo.GetByIdempotencyKey(ctx, input.UserID, input.IdempotencyKey)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "checking idempotency key")
	}
	if existing != nil {
		return existing, nil
	}

	quote, err := pricing.Compute(input.ModelID, input.Options)
	if err != nil {
		return nil, err
	}

	job := &models.GenerationJob{
		UserID:         input.UserID,
		ModelID:        input.ModelID,
		SKU:            quote.SKU,
		PriceStars:     quote.PriceStars,
		PricingVersion: quote.PricingVersion,
		Status:         enums.JobStatusQueued,
		IdempotencyKey: input.IdempotencyKey,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		if db.IsUniqueViolation(err, "uq_generation_jobs_user_idempotency_key") {
			// Another replica created the job for this key between our
			// read and write; hand back its row instead.
			existing, readErr := s.repo.GetByIdempotencyKey(ctx, input.UserID, input.IdempotencyKey)
			if readErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "creating job")
	}

	ctx = s.logCtx(ctx, job)
	result, submitErr := s.submitUpstream(ctx, input)
	if submitErr != nil {
		return nil, s.failSubmission(ctx, job, submitErr)
	}

	ok, err := s.repo.MarkProcessing(ctx, job.ID, result.ProviderTaskID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_generation_jobs_provider_task_id") {
			return nil, errors.Wrap(errors.CodeConflict, err, "provider task already bound to another job")
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "recording provider acceptance")
	}
	if !ok {
		// The job left queued while we were submitting; the only such
		// transition is user cancellation. The upstream may still call
		// back, and the reconciler will treat it as a terminal no-op.
		if s.logg != nil {
			s.logg.Warn(ctx, "job no longer queued after provider acceptance")
		}
		s.metrics.IncSubmitResult("accepted_after_cancel")
		return s.reload(ctx, job.ID)
	}

	s.metrics.IncSubmitResult("accepted")
	if s.logg != nil {
		s.logg.Info(s.logg.WithProviderTask(ctx, result.ProviderTaskID), "job accepted by provider")
	}
	return s.reload(ctx, job.ID)
}

// submitUpstream runs the bounded retry loop around the provider call.
// Retry eligibility is decided solely by the provider classifier; an
// open circuit aborts at once without consuming the retry budget.
func (s *service) submitUpstream(ctx context.Context, input SubmitInput) (*provider.SubmitResult, error) {
	req := provider.SubmitRequest{
		Model:       input.ModelID,
		CallbackURL: s.cfg.CallbackURL,
		Input:       input.ProviderInput,
	}

	var result *provider.SubmitResult
	backoff := retry.WithCappedDuration(s.cfg.MaxBackoff, retry.NewExponential(s.cfg.InitialBackoff))
	backoff = retry.WithMaxRetries(uint64(s.cfg.MaxAttempts-1), backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if s.circuit.IsOpen(providerKey) {
			return errors.New(errors.CodeCircuitOpen, "provider circuit open")
		}

		res, err := s.upstream.Submit(ctx, req)
		if err != nil {
			if provider.Retryable(err) {
				s.circuit.RecordFailure(providerKey)
				return retry.RetryableError(err)
			}
			// Terminal rejections say nothing about upstream health.
			return err
		}

		s.circuit.RecordSuccess(providerKey)
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// failSubmission moves a freshly queued job to failed and returns the
// classified error for the caller.
func (s *service) failSubmission(ctx context.Context, job *models.GenerationJob, submitErr error) error {
	label := "terminal"
	switch {
	case errors.HasCode(submitErr, errors.CodeCircuitOpen):
		label = "circuit_open"
	case errors.HasCode(submitErr, errors.CodeUpstreamTransient):
		label = "retries_exhausted"
	}
	s.metrics.IncSubmitResult(label)

	if _, err := s.repo.MarkFailed(ctx, job.ID, enums.JobStatusQueued, submitErr.Error()); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "failed to mark job failed after submission error", err)
		}
	}
	if s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "submit_result", label), "provider submission failed: "+submitErr.Error())
	}
	return submitErr
}

func (s *service) Get(ctx context.Context, userID, jobID uuid.UUID) (*models.GenerationJob, error) {
	if jobID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "job id is required")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading job")
	}
	if job == nil || (userID != uuid.Nil && job.UserID != userID) {
		return nil, errors.New(errors.CodeNotFound, "job not found")
	}
	return job, nil
}

// Cancel abandons a job that has not settled. Cancelling an already
// cancelled job is a no-op; other terminal states refuse.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.GenerationJob, error) {
	job, err := s.Get(ctx, input.UserID, input.JobID)
	if err != nil {
		return nil, err
	}

	if job.Status == enums.JobStatusCancelled {
		return job, nil
	}
	if job.Status.IsTerminal() {
		return nil, errors.New(errors.CodeStateConflict, fmt.Sprintf("job already %s", job.Status))
	}

	ok, err := s.repo.MarkCancelled(ctx, job.ID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "cancelling job")
	}
	if !ok {
		// Lost the race against a terminal transition.
		fresh, err := s.reload(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		if fresh.Status == enums.JobStatusCancelled {
			return fresh, nil
		}
		return nil, errors.New(errors.CodeStateConflict, fmt.Sprintf("job already %s", fresh.Status))
	}

	if s.logg != nil {
		s.logg.Info(s.logCtx(ctx, job), "job cancelled")
	}
	return s.reload(ctx, job.ID)
}

func (s *service) reload(ctx context.Context, jobID uuid.UUID) (*models.GenerationJob, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "reloading job")
	}
	if job == nil {
		return nil, errors.New(errors.CodeNotFound, "job not found")
	}
	return job, nil
}

func (s *service) logCtx(ctx context.Context, job *models.GenerationJob) context.Context {
	if s.logg == nil {
		return ctx
	}
	ctx = s.logg.WithJobID(ctx, job.ID.String())
	return s.logg.WithUserID(ctx, job.UserID.String())
}
