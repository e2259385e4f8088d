package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/starfall-ai/starfall-backend/internal/jobs"
	"github.com/starfall-ai/starfall-backend/internal/ledger"
	"github.com/starfall-ai/starfall-backend/internal/provider"
	"github.com/starfall-ai/starfall-backend/pkg/db/models"
	"github.com/starfall-ai/starfall-backend/pkg/enums"
	"github.com/starfall-ai/starfall-backend/pkg/errors"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeJobsRepo struct {
	mu   sync.Mutex
	jobs map[string]*models.GenerationJob
}

func newFakeJobsRepo(seed ...*models.GenerationJob) *fakeJobsRepo {
	repo := &fakeJobsRepo{jobs: make(map[string]*models.GenerationJob)}
	for _, job := range seed {
		if job.ID == uuid.Nil {
			job.ID = uuid.New()
		}
		repo.jobs[*job.ProviderTaskID] = job
	}
	return repo
}

func (f *fakeJobsRepo) WithTx(tx *gorm.DB) jobs.Repository { return f }

func (f *fakeJobsRepo) Create(ctx context.Context, job *models.GenerationJob) error { return nil }

func (f *fakeJobsRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.ID == id {
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeJobsRepo) GetByProviderTaskID(ctx context.Context, providerTaskID string) (*models.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[providerTaskID]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobsRepo) GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.GenerationJob, error) {
	return nil, nil
}

func (f *fakeJobsRepo) MarkProcessing(ctx context.Context, id uuid.UUID, providerTaskID string) (bool, error) {
	return false, nil
}

func (f *fakeJobsRepo) MarkSuccess(ctx context.Context, id uuid.UUID, resultURLs []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.ID == id {
			if job.Status != enums.JobStatusProcessing {
				return false, nil
			}
			job.Status = enums.JobStatusSuccess
			job.ResultURLs = pq.StringArray(resultURLs)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeJobsRepo) MarkFailed(ctx context.Context, id uuid.UUID, from enums.JobStatus, message string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.ID == id {
			if job.Status != from {
				return false, nil
			}
			job.Status = enums.JobStatusFailed
			job.ErrorMessage = &message
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeJobsRepo) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeJobsRepo) ListProcessingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.GenerationJob, error) {
	return nil, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	debits  []ledger.DebitInput
	debitFn func(ctx context.Context, input ledger.DebitInput) (*models.LedgerEntry, error)
}

func (f *fakeLedger) WithTx(tx *gorm.DB) ledger.Service { return f }

func (f *fakeLedger) Debit(ctx context.Context, input ledger.DebitInput) (*models.LedgerEntry, error) {
	f.mu.Lock()
	f.debits = append(f.debits, input)
	f.mu.Unlock()
	if f.debitFn != nil {
		return f.debitFn(ctx, input)
	}
	return &models.LedgerEntry{}, nil
}

func (f *fakeLedger) Refund(ctx context.Context, input ledger.RefundInput) (*models.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeLedger) GrantSubscription(ctx context.Context, input ledger.GrantInput) (*models.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeLedger) GrantPackage(ctx context.Context, input ledger.GrantInput) (*models.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeLedger) ExpireSubscription(ctx context.Context, userID uuid.UUID) (*models.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeLedger) GetBalance(ctx context.Context, userID uuid.UUID) (*ledger.Balance, error) {
	return &ledger.Balance{}, nil
}

func (f *fakeLedger) debitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.debits)
}

func processingJob(price int) *models.GenerationJob {
	taskID := "task-" + uuid.NewString()
	return &models.GenerationJob{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		Status:         enums.JobStatusProcessing,
		PriceStars:     price,
		ProviderTaskID: &taskID,
	}
}

func newTestService(t *testing.T, repo jobs.Repository, ledgerSvc ledger.Service) Service {
	t.Helper()
	svc, err := NewService(fakeTxRunner{}, repo, ledgerSvc, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestReconcileSuccessSettlesAndDebits(t *testing.T) {
	job := processingJob(92)
	repo := newFakeJobsRepo(job)
	ledgerSvc := &fakeLedger{}
	svc := newTestService(t, repo, ledgerSvc)

	outcome, err := svc.Reconcile(context.Background(), Signal{
		ProviderTaskID: *job.ProviderTaskID,
		State:          provider.TaskStateSuccess,
		ResultURLs:     []string{"https://cdn.example.com/a.mp4"},
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome != OutcomeSettledSuccess {
		t.Fatalf("outcome = %q", outcome)
	}

	settled, _ := repo.GetByProviderTaskID(context.Background(), *job.ProviderTaskID)
	if settled.Status != enums.JobStatusSuccess {
		t.Fatalf("status = %q", settled.Status)
	}
	if ledgerSvc.debitCount() != 1 {
		t.Fatalf("debits = %d", ledgerSvc.debitCount())
	}
	if got := ledgerSvc.debits[0]; got.Amount != 92 || got.JobID != job.ID || got.UserID != job.UserID {
		t.Fatalf("debit = %+v", got)
	}
}

func TestReconcileDuplicateDeliveryDebitsOnce(t *testing.T) {
	job := processingJob(92)
	repo := newFakeJobsRepo(job)
	ledgerSvc := &fakeLedger{}
	svc := newTestService(t, repo, ledgerSvc)

	signal := Signal{
		ProviderTaskID: *job.ProviderTaskID,
		State:          provider.TaskStateSuccess,
		ResultURLs:     []string{"https://cdn.example.com/a.mp4"},
	}

	first, err := svc.Reconcile(context.Background(), signal)
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	second, err := svc.Reconcile(context.Background(), signal)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}

	if first != OutcomeSettledSuccess || second != OutcomeDuplicate {
		t.Fatalf("outcomes = %q, %q", first, second)
	}
	if ledgerSvc.debitCount() != 1 {
		t.Fatalf("debits = %d, want exactly 1", ledgerSvc.debitCount())
	}
}

func TestReconcileFailureDoesNotCharge(t *testing.T) {
	job := processingJob(92)
	repo := newFakeJobsRepo(job)
	ledgerSvc := &fakeLedger{}
	svc := newTestService(t, repo, ledgerSvc)

	outcome, err := svc.Reconcile(context.Background(), Signal{
		ProviderTaskID: *job.ProviderTaskID,
		State:          provider.TaskStateFail,
		FailureMessage: "content policy violation",
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome != OutcomeSettledFailure {
		t.Fatalf("outcome = %q", outcome)
	}

	settled, _ := repo.GetByProviderTaskID(context.Background(), *job.ProviderTaskID)
	if settled.Status != enums.JobStatusFailed {
		t.Fatalf("status = %q", settled.Status)
	}
	if settled.ErrorMessage == nil || *settled.ErrorMessage != "content policy violation" {
		t.Fatalf("error message = %v", settled.ErrorMessage)
	}
	if ledgerSvc.debitCount() != 0 {
		t.Fatalf("failed job must not be charged, debits = %d", ledgerSvc.debitCount())
	}
}

func TestReconcileUnknownTask(t *testing.T) {
	svc := newTestService(t, newFakeJobsRepo(), &fakeLedger{})

	outcome, err := svc.Reconcile(context.Background(), Signal{
		ProviderTaskID: "task-unknown",
		State:          provider.TaskStateSuccess,
		ResultURLs:     []string{"https://cdn.example.com/a.mp4"},
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome != OutcomeUnknownTask {
		t.Fatalf("outcome = %q", outcome)
	}
}

func TestReconcileNonTerminalSignalIgnored(t *testing.T) {
	job := processingJob(92)
	repo := newFakeJobsRepo(job)
	svc := newTestService(t, repo, &fakeLedger{})

	outcome, err := svc.Reconcile(context.Background(), Signal{
		ProviderTaskID: *job.ProviderTaskID,
		State:          provider.TaskStateProcessing,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome != OutcomeStillRunning {
		t.Fatalf("outcome = %q", outcome)
	}

	fresh, _ := repo.GetByProviderTaskID(context.Background(), *job.ProviderTaskID)
	if fresh.Status != enums.JobStatusProcessing {
		t.Fatalf("status = %q", fresh.Status)
	}
}

func TestReconcileCancelledJobIsNoOp(t *testing.T) {
	taskID := "task-cancelled"
	job := &models.GenerationJob{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		Status:         enums.JobStatusCancelled,
		PriceStars:     92,
		ProviderTaskID: &taskID,
	}
	repo := newFakeJobsRepo(job)
	ledgerSvc := &fakeLedger{}
	svc := newTestService(t, repo, ledgerSvc)

	outcome, err := svc.Reconcile(context.Background(), Signal{
		ProviderTaskID: taskID,
		State:          provider.TaskStateSuccess,
		ResultURLs:     []string{"https://cdn.example.com/a.mp4"},
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("outcome = %q", outcome)
	}
	if ledgerSvc.debitCount() != 0 {
		t.Fatal("cancelled job must not be charged")
	}

	fresh, _ := repo.GetByProviderTaskID(context.Background(), taskID)
	if fresh.Status != enums.JobStatusCancelled {
		t.Fatalf("status moved to %q", fresh.Status)
	}
}

func TestReconcileSuccessWithoutOutputsSettlesAsFailure(t *testing.T) {
	job := processingJob(92)
	repo := newFakeJobsRepo(job)
	ledgerSvc := &fakeLedger{}
	svc := newTestService(t, repo, ledgerSvc)

	outcome, err := svc.Reconcile(context.Background(), Signal{
		ProviderTaskID: *job.ProviderTaskID,
		State:          provider.TaskStateSuccess,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome != OutcomeSettledFailure {
		t.Fatalf("outcome = %q", outcome)
	}
	if ledgerSvc.debitCount() != 0 {
		t.Fatal("unusable success must not be charged")
	}
}

func TestReconcileInsufficientBalanceRollsBack(t *testing.T) {
	job := processingJob(92)
	repo := newFakeJobsRepo(job)
	ledgerSvc := &fakeLedger{}
	ledgerSvc.debitFn = func(ctx context.Context, input ledger.DebitInput) (*models.LedgerEntry, error) {
		return nil, errors.New(errors.CodeInsufficientBalance, "not enough stars")
	}
	svc := newTestService(t, repo, ledgerSvc)

	outcome, err := svc.Reconcile(context.Background(), Signal{
		ProviderTaskID: *job.ProviderTaskID,
		State:          provider.TaskStateSuccess,
		ResultURLs:     []string{"https://cdn.example.com/a.mp4"},
	})
	if outcome != OutcomeInsufficientBalance {
		t.Fatalf("outcome = %q", outcome)
	}
	if !errors.HasCode(err, errors.CodeInsufficientBalance) {
		t.Fatalf("err = %v", err)
	}
}
