package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/starfall-ai/starfall-backend/pkg/db"
	"github.com/starfall-ai/starfall-backend/pkg/db/models"
	"github.com/starfall-ai/starfall-backend/pkg/enums"
	"github.com/starfall-ai/starfall-backend/pkg/errors"
)

// Balance is the caller-facing view of a user's star pools.
type Balance struct {
	SubscriptionStars int `json:"subscription_stars"`
	PackageStars      int `json:"package_stars"`
	TotalStars        int `json:"total_stars"`
}

// DebitInput charges a user for one completed generation job.
type DebitInput struct {
	UserID uuid.UUID
	JobID  uuid.UUID
	Amount int
}

// RefundInput restores a previous deduction, pool for pool.
type RefundInput struct {
	UserID         uuid.UUID
	JobID          uuid.UUID
	ToSubscription int
	ToPackage      int
	Reason         string
}

// GrantInput adds stars to one of a user's pools.
type GrantInput struct {
	UserID   uuid.UUID
	Amount   int
	Metadata json.RawMessage
}

// Service defines the credit ledger operations. Deduction draws the
// subscription pool first, then the package pool; every movement writes
// an immutable ledger entry.
type Service interface {
	// WithTx rebinds the service to a caller-owned transaction so a
	// debit can commit atomically with a job status transition.
	WithTx(tx *gorm.DB) Service
	Debit(ctx context.Context, input DebitInput) (*models.LedgerEntry, error)
	Refund(ctx context.Context, input RefundInput) (*models.LedgerEntry, error)
	GrantSubscription(ctx context.Context, input GrantInput) (*models.LedgerEntry, error)
	GrantPackage(ctx context.Context, input GrantInput) (*models.LedgerEntry, error)
	ExpireSubscription(ctx context.Context, userID uuid.UUID) (*models.LedgerEntry, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error)
}

type service struct {
	client *db.Client
	repo   Repository
	bound  bool
}

// NewService wires the ledger service. The client may be nil only when
// every call arrives through WithTx.
func NewService(client *db.Client, repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{client: client, repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{client: s.client, repo: s.repo.WithTx(tx), bound: true}
}

// inTx runs fn inside a transaction, reusing the bound one when present.
func (s *service) inTx(ctx context.Context, fn func(repo Repository) error) error {
	if s.bound || s.client == nil {
		return fn(s.repo)
	}
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(s.repo.WithTx(tx))
	})
}

func (s *service) Debit(ctx context.Context, input DebitInput) (*models.LedgerEntry, error) {
	if input.UserID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	if input.JobID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "job id is required")
	}
	if input.Amount <= 0 {
		return nil, errors.New(errors.CodeValidation, "debit amount must be positive")
	}

	var entry *models.LedgerEntry
	err := s.inTx(ctx, func(repo Repository) error {
		split, err := repo.DebitPools(ctx, input.UserID, input.Amount)
		if err != nil {
			return errors.Wrap(errors.CodeDependency, err, "debiting balance")
		}
		if split == nil {
			return errors.New(errors.CodeInsufficientBalance, "not enough stars").
				WithDetails(map[string]any{"required_stars": input.Amount})
		}

		jobID := input.JobID
		entry = &models.LedgerEntry{
			UserID:           input.UserID,
			Kind:             enums.LedgerEntryDeduction,
			Amount:           -input.Amount,
			FromSubscription: split.FromSubscription,
			FromPackage:      split.FromPackage,
			GenerationJobID:  &jobID,
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			if db.IsUniqueViolation(err, "uq_ledger_entries_job_deduction") {
				return errors.Wrap(errors.CodeConflict, err, "job already charged")
			}
			return errors.Wrap(errors.CodeDependency, err, "recording deduction")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Refund(ctx context.Context, input RefundInput) (*models.LedgerEntry, error) {
	if input.UserID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	amount := input.ToSubscription + input.ToPackage
	if amount <= 0 || input.ToSubscription < 0 || input.ToPackage < 0 {
		return nil, errors.New(errors.CodeValidation, "refund split must be positive")
	}

	var entry *models.LedgerEntry
	err := s.inTx(ctx, func(repo Repository) error {
		if err := repo.CreditPools(ctx, input.UserID, input.ToSubscription, input.ToPackage); err != nil {
			return errors.Wrap(errors.CodeDependency, err, "restoring balance")
		}

		metadata, _ := json.Marshal(map[string]string{"reason": input.Reason})
		entry = &models.LedgerEntry{
			UserID:           input.UserID,
			Kind:             enums.LedgerEntryRefund,
			Amount:           amount,
			FromSubscription: input.ToSubscription,
			FromPackage:      input.ToPackage,
			Metadata:         metadata,
		}
		if input.JobID != uuid.Nil {
			jobID := input.JobID
			entry.GenerationJobID = &jobID
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			return errors.Wrap(errors.CodeDependency, err, "recording refund")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) GrantSubscription(ctx context.Context, input GrantInput) (*models.LedgerEntry, error) {
	return s.grant(ctx, input, true)
}

func (s *service) GrantPackage(ctx context.Context, input GrantInput) (*models.LedgerEntry, error) {
	return s.grant(ctx, input, false)
}

func (s *service) grant(ctx context.Context, input GrantInput, subscription bool) (*models.LedgerEntry, error) {
	if input.UserID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	if input.Amount <= 0 {
		return nil, errors.New(errors.CodeValidation, "grant amount must be positive")
	}

	toSubscription, toPackage := 0, 0
	if subscription {
		toSubscription = input.Amount
	} else {
		toPackage = input.Amount
	}

	var entry *models.LedgerEntry
	err := s.inTx(ctx, func(repo Repository) error {
		if err := repo.CreditPools(ctx, input.UserID, toSubscription, toPackage); err != nil {
			return errors.Wrap(errors.CodeDependency, err, "crediting balance")
		}
		entry = &models.LedgerEntry{
			UserID:           input.UserID,
			Kind:             enums.LedgerEntryGrant,
			Amount:           input.Amount,
			FromSubscription: toSubscription,
			FromPackage:      toPackage,
			Metadata:         input.Metadata,
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			return errors.Wrap(errors.CodeDependency, err, "recording grant")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ExpireSubscription wipes the replenishable pool at the end of a
// billing cycle. Returns a nil entry when there was nothing to expire.
func (s *service) ExpireSubscription(ctx context.Context, userID uuid.UUID) (*models.LedgerEntry, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}

	var entry *models.LedgerEntry
	err := s.inTx(ctx, func(repo Repository) error {
		expired, err := repo.ZeroSubscription(ctx, userID)
		if err != nil {
			return errors.Wrap(errors.CodeDependency, err, "expiring subscription stars")
		}
		if expired == 0 {
			return nil
		}

		metadata, _ := json.Marshal(map[string]string{"reason": "subscription_expiry"})
		entry = &models.LedgerEntry{
			UserID:           userID,
			Kind:             enums.LedgerEntryDeduction,
			Amount:           -expired,
			FromSubscription: expired,
			Metadata:         metadata,
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			return errors.Wrap(errors.CodeDependency, err, "recording expiry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading balance")
	}
	return &Balance{
		SubscriptionStars: balance.SubscriptionStars,
		PackageStars:      balance.PackageStars,
		TotalStars:        balance.Total(),
	}, nil
}
