package poll

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/starfall-ai/starfall-backend/internal/jobs"
	"github.com/starfall-ai/starfall-backend/internal/provider"
	"github.com/starfall-ai/starfall-backend/internal/reconcile"
	"github.com/starfall-ai/starfall-backend/pkg/config"
	"github.com/starfall-ai/starfall-backend/pkg/db/models"
	"github.com/starfall-ai/starfall-backend/pkg/logger"
)

const settlementJobName = "settlement-sweep"

// SettlementJobParams configure the settlement sweep.
type SettlementJobParams struct {
	Jobs       jobs.Repository
	Upstream   provider.Client
	Reconciler reconcile.Service
	Logger     *logger.Logger
	Config     config.PollConfig
	Now        func() time.Time
}

// SettlementJob is the fallback for lost webhooks: it polls the
// upstream for jobs stuck in processing and funnels every terminal
// answer through the same reconciler the webhook uses, so settlement
// stays exactly-once regardless of which path gets there first. Jobs
// that outlive the operational window with no upstream answer are
// settled as failed.
type SettlementJob struct {
	jobs       jobs.Repository
	upstream   provider.Client
	reconciler reconcile.Service
	logg       *logger.Logger
	cfg        config.PollConfig
	now        func() time.Time
}

// NewSettlementJob builds the settlement sweep.
func NewSettlementJob(params SettlementJobParams) (*SettlementJob, error) {
	if params.Jobs == nil {
		return nil, fmt.Errorf("job repository required")
	}
	if params.Upstream == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	cfg := params.Config
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 30 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &SettlementJob{
		jobs:       params.Jobs,
		upstream:   params.Upstream,
		reconciler: params.Reconciler,
		logg:       params.Logger,
		cfg:        cfg,
		now:        now,
	}, nil
}

// Name identifies the sweep in logs and metrics.
func (j *SettlementJob) Name() string {
	return settlementJobName
}

// Run polls one batch of stale processing jobs.
func (j *SettlementJob) Run(ctx context.Context) error {
	// Webhooks get one interval to land before we start asking.
	cutoff := j.now().Add(-j.cfg.Interval)
	stale, err := j.jobs.ListProcessingBefore(ctx, cutoff, j.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("listing stale jobs: %w", err)
	}

	var errs error
	for _, job := range stale {
		if err := j.sweepOne(ctx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("job %s: %w", job.ID, err))
		}
	}
	return errs
}

func (j *SettlementJob) sweepOne(ctx context.Context, job models.GenerationJob) error {
	if job.ProviderTaskID == nil {
		return fmt.Errorf("processing job has no provider task id")
	}
	taskID := *job.ProviderTaskID

	status, err := j.upstream.QueryTask(ctx, taskID)
	if err != nil {
		if j.expired(job) {
			return j.settleTimeout(ctx, taskID)
		}
		return fmt.Errorf("querying provider: %w", err)
	}

	if status.State.Terminal() {
		_, err := j.reconciler.Reconcile(ctx, reconcile.Signal{
			ProviderTaskID: taskID,
			State:          status.State,
			ResultURLs:     status.ResultURLs,
			FailureMessage: status.FailureMessage,
		})
		return err
	}

	if j.expired(job) {
		return j.settleTimeout(ctx, taskID)
	}

	if j.logg != nil {
		j.logg.Info(j.logg.WithProviderTask(ctx, taskID), "job still running upstream")
	}
	return nil
}

func (j *SettlementJob) expired(job models.GenerationJob) bool {
	return j.now().Sub(job.UpdatedAt) > j.cfg.ProcessingTimeout
}

func (j *SettlementJob) settleTimeout(ctx context.Context, taskID string) error {
	_, err := j.reconciler.Reconcile(ctx, reconcile.Signal{
		ProviderTaskID: taskID,
		State:          provider.TaskStateFail,
		FailureMessage: "no completion within the operational window",
	})
	return err
}
