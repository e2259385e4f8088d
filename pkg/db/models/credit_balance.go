package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditBalance materializes a user's two star pools. It is kept
// consistent with the ledger by updating both inside one transaction.
type CreditBalance struct {
	UserID            uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	SubscriptionStars int       `gorm:"column:subscription_stars;not null;default:0"`
	PackageStars      int       `gorm:"column:package_stars;not null;default:0"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CreditBalance) TableName() string {
	return "credit_balances"
}

// Total returns the spendable balance across both pools.
func (b CreditBalance) Total() int {
	return b.SubscriptionStars + b.PackageStars
}
