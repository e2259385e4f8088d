package reconcile

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/starfall-ai/starfall-backend/internal/jobs"
	"github.com/starfall-ai/starfall-backend/internal/ledger"
	"github.com/starfall-ai/starfall-backend/internal/provider"
	"github.com/starfall-ai/starfall-backend/pkg/db/models"
	"github.com/starfall-ai/starfall-backend/pkg/enums"
	"github.com/starfall-ai/starfall-backend/pkg/errors"
	"github.com/starfall-ai/starfall-backend/pkg/logger"
	"github.com/starfall-ai/starfall-backend/pkg/metrics"
)

// Outcome is the operator-visible result of one reconciliation. The
// provider always receives an ack regardless of outcome; this value is
// what surfaces in metrics and logs instead.
type Outcome string

const (
	OutcomeSettledSuccess      Outcome = "settled_success"
	OutcomeSettledFailure      Outcome = "settled_failure"
	OutcomeDuplicate           Outcome = "duplicate"
	OutcomeUnknownTask         Outcome = "unknown_task"
	OutcomeStillRunning        Outcome = "still_running"
	OutcomeInsufficientBalance Outcome = "insufficient_balance"
	OutcomeInternalError       Outcome = "internal_error"
)

// Signal is a normalized completion notification, whether it arrived by
// webhook or by the polling fallback.
type Signal struct {
	ProviderTaskID string
	State          provider.TaskState
	ResultURLs     []string
	FailureMessage string
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service applies provider completion signals to the job record and the
// credit ledger exactly once per job.
type Service interface {
	Reconcile(ctx context.Context, signal Signal) (Outcome, error)
}

type service struct {
	tx      TxRunner
	jobs    jobs.Repository
	ledger  ledger.Service
	metrics *metrics.SettlementMetrics
	logg    *logger.Logger
}

// NewService wires the reconciler.
func NewService(
	tx TxRunner,
	jobsRepo jobs.Repository,
	ledgerSvc ledger.Service,
	m *metrics.SettlementMetrics,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if jobsRepo == nil {
		return nil, fmt.Errorf("job repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &service{tx: tx, jobs: jobsRepo, ledger: ledgerSvc, metrics: m, logg: logg}, nil
}

// Reconcile settles one signal. Charging follows the charge-on-success
// model: the debit happens in the same transaction as the
// processing -> success transition, and failed jobs are never charged,
// so there is no refund path to get wrong. Duplicates and signals for
// already-terminal jobs are no-ops.
func (s *service) Reconcile(ctx context.Context, signal Signal) (Outcome, error) {
	ctx = s.logCtx(ctx, signal.ProviderTaskID)

	outcome, err := s.reconcile(ctx, signal)
	s.metrics.IncReconcileOutcome(string(outcome))
	s.report(ctx, outcome, err)
	return outcome, err
}

func (s *service) reconcile(ctx context.Context, signal Signal) (Outcome, error) {
	if signal.ProviderTaskID == "" {
		return OutcomeUnknownTask, errors.New(errors.CodeValidation, "provider task id is required")
	}
	if !signal.State.Terminal() {
		return OutcomeStillRunning, nil
	}

	job, err := s.jobs.GetByProviderTaskID(ctx, signal.ProviderTaskID)
	if err != nil {
		return OutcomeInternalError, errors.Wrap(errors.CodeDependency, err, "looking up job")
	}
	if job == nil {
		return OutcomeUnknownTask, nil
	}
	ctx = s.jobLogCtx(ctx, job)

	if job.Status.IsTerminal() {
		return OutcomeDuplicate, nil
	}

	if signal.State == provider.TaskStateSuccess && len(signal.ResultURLs) == 0 {
		// Success without outputs is unusable; settle it as a failure.
		signal.State = provider.TaskStateFail
		signal.FailureMessage = "provider reported success without outputs"
	}

	if signal.State == provider.TaskStateSuccess {
		return s.settleSuccess(ctx, job, signal)
	}
	return s.settleFailure(ctx, job, signal)
}

// settleSuccess performs the guarded transition and the debit as one
// atomic unit: a job is never success without its deduction row, and
// never charged without reaching success.
func (s *service) settleSuccess(ctx context.Context, job *models.GenerationJob, signal Signal) (Outcome, error) {
	duplicate := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.jobs.WithTx(tx).MarkSuccess(ctx, job.ID, signal.ResultURLs)
		if err != nil {
			return errors.Wrap(errors.CodeDependency, err, "marking job success")
		}
		if !ok {
			// Lost the redelivery race; another handler settled first.
			duplicate = true
			return nil
		}

		_, err = s.ledger.WithTx(tx).Debit(ctx, ledger.DebitInput{
			UserID: job.UserID,
			JobID:  job.ID,
			Amount: job.PriceStars,
		})
		return err
	})
	if err != nil {
		if errors.HasCode(err, errors.CodeInsufficientBalance) {
			// Rolled back: the job stays processing and the poll
			// fallback will retry once the balance allows.
			return OutcomeInsufficientBalance, err
		}
		return OutcomeInternalError, err
	}
	if duplicate {
		return OutcomeDuplicate, nil
	}
	return OutcomeSettledSuccess, nil
}

func (s *service) settleFailure(ctx context.Context, job *models.GenerationJob, signal Signal) (Outcome, error) {
	message := signal.FailureMessage
	if message == "" {
		message = "provider reported failure"
	}

	ok, err := s.jobs.MarkFailed(ctx, job.ID, enums.JobStatusProcessing, message)
	if err != nil {
		return OutcomeInternalError, errors.Wrap(errors.CodeDependency, err, "marking job failed")
	}
	if !ok {
		return OutcomeDuplicate, nil
	}
	return OutcomeSettledFailure, nil
}

func (s *service) report(ctx context.Context, outcome Outcome, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithField(ctx, "outcome", string(outcome))
	switch outcome {
	case OutcomeSettledSuccess, OutcomeSettledFailure:
		s.logg.Info(ctx, "job settled")
	case OutcomeDuplicate:
		s.logg.Info(ctx, "duplicate completion signal ignored")
	case OutcomeStillRunning:
		s.logg.Info(ctx, "non-terminal signal ignored")
	case OutcomeUnknownTask:
		s.logg.Warn(ctx, "completion signal for unknown provider task")
	default:
		s.logg.Error(ctx, "reconciliation failed", err)
	}
}

func (s *service) logCtx(ctx context.Context, providerTaskID string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithProviderTask(ctx, providerTaskID)
}

func (s *service) jobLogCtx(ctx context.Context, job *models.GenerationJob) context.Context {
	if s.logg == nil {
		return ctx
	}
	ctx = s.logg.WithJobID(ctx, job.ID.String())
	return s.logg.WithUserID(ctx, job.UserID.String())
}
