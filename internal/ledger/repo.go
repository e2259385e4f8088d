package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/starfall-ai/starfall-backend/pkg/db/models"
)

// DebitSplit breaks a successful debit down by pool.
type DebitSplit struct {
	FromSubscription int
	FromPackage      int
}

// Repository manages persistence for balances and ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateEntry(ctx context.Context, entry *models.LedgerEntry) error
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error)
	DebitPools(ctx context.Context, userID uuid.UUID, amount int) (*DebitSplit, error)
	CreditPools(ctx context.Context, userID uuid.UUID, toSubscription, toPackage int) error
	ZeroSubscription(ctx context.Context, userID uuid.UUID) (int, error)
	ListEntriesByJob(ctx context.Context, jobID uuid.UUID) ([]models.LedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error) {
	var balance models.CreditBalance
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Users without a balance row simply have zero stars.
		return &models.CreditBalance{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// debitQuery draws subscription stars first and only then package stars,
// as one atomic statement. The row lock serializes concurrent debits for
// the same user; the balance guard makes overdrafts impossible.
const debitQuery = `
WITH current AS (
    SELECT user_id, subscription_stars, package_stars
    FROM credit_balances
    WHERE user_id = @user_id
    FOR UPDATE
), updated AS (
    UPDATE credit_balances cb
    SET subscription_stars = current.subscription_stars - LEAST(current.subscription_stars, @amount),
        package_stars = current.package_stars - GREATEST(@amount - current.subscription_stars, 0),
        updated_at = now()
    FROM current
    WHERE cb.user_id = current.user_id
      AND current.subscription_stars + current.package_stars >= @amount
    RETURNING LEAST(current.subscription_stars, @amount) AS from_subscription,
              GREATEST(@amount - current.subscription_stars, 0) AS from_package
)
SELECT from_subscription, from_package FROM updated
`

// DebitPools atomically removes amount stars from the user's pools.
// A nil split with a nil error means the balance was insufficient.
func (r *repository) DebitPools(ctx context.Context, userID uuid.UUID, amount int) (*DebitSplit, error) {
	var row struct {
		FromSubscription int
		FromPackage      int
	}
	result := r.db.WithContext(ctx).
		Raw(debitQuery, map[string]any{"user_id": userID, "amount": amount}).
		Scan(&row)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &DebitSplit{FromSubscription: row.FromSubscription, FromPackage: row.FromPackage}, nil
}

const creditQuery = `
INSERT INTO credit_balances (user_id, subscription_stars, package_stars, updated_at)
VALUES (@user_id, @to_subscription, @to_package, now())
ON CONFLICT (user_id) DO UPDATE
SET subscription_stars = credit_balances.subscription_stars + EXCLUDED.subscription_stars,
    package_stars = credit_balances.package_stars + EXCLUDED.package_stars,
    updated_at = now()
`

func (r *repository) CreditPools(ctx context.Context, userID uuid.UUID, toSubscription, toPackage int) error {
	return r.db.WithContext(ctx).
		Exec(creditQuery, map[string]any{
			"user_id":         userID,
			"to_subscription": toSubscription,
			"to_package":      toPackage,
		}).Error
}

const expireQuery = `
UPDATE credit_balances cb
SET subscription_stars = 0,
    updated_at = now()
FROM (
    SELECT user_id, subscription_stars
    FROM credit_balances
    WHERE user_id = @user_id
    FOR UPDATE
) old
WHERE cb.user_id = old.user_id
  AND old.subscription_stars > 0
RETURNING old.subscription_stars AS expired
`

// ZeroSubscription wipes the subscription pool and reports how many
// stars were removed. Zero means there was nothing to expire.
func (r *repository) ZeroSubscription(ctx context.Context, userID uuid.UUID) (int, error) {
	var row struct {
		Expired int
	}
	result := r.db.WithContext(ctx).
		Raw(expireQuery, map[string]any{"user_id": userID}).
		Scan(&row)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, nil
	}
	return row.Expired, nil
}

func (r *repository) ListEntriesByJob(ctx context.Context, jobID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("generation_job_id = ?", jobID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
