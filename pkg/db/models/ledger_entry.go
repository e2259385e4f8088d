package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/starfall-ai/starfall-backend/pkg/enums"
)

// LedgerEntry is an immutable record of stars moving in or out of a
// user's balance. Amount is signed: grants are positive, deductions
// negative. FromSubscription/FromPackage break a deduction down by pool
// so audits can reconstruct exactly how a job was paid for.
type LedgerEntry struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	Kind             enums.LedgerEntryKind `gorm:"column:kind;type:ledger_entry_kind_enum;not null"`
	Amount           int                   `gorm:"column:amount;not null"`
	FromSubscription int                   `gorm:"column:from_subscription;not null;default:0"`
	FromPackage      int                   `gorm:"column:from_package;not null;default:0"`
	GenerationJobID  *uuid.UUID            `gorm:"column:generation_job_id;type:uuid"`
	Metadata         json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
