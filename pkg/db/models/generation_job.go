package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/starfall-ai/starfall-backend/pkg/enums"
)

// GenerationJob records one attempted unit of paid generation work.
// PriceStars is frozen at creation time and never changes afterwards.
type GenerationJob struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uq_generation_jobs_user_idempotency_key"`
	ModelID        string          `gorm:"column:model_id;not null"`
	SKU            string          `gorm:"column:sku;not null"`
	PriceStars     int             `gorm:"column:price_stars;not null"`
	PricingVersion string          `gorm:"column:pricing_version;not null"`
	Status         enums.JobStatus `gorm:"column:status;type:job_status_enum;not null;default:queued"`
	IdempotencyKey string          `gorm:"column:idempotency_key;not null;uniqueIndex:uq_generation_jobs_user_idempotency_key"`
	ProviderTaskID *string         `gorm:"column:provider_task_id;uniqueIndex:uq_generation_jobs_provider_task_id"`
	ResultURLs     pq.StringArray  `gorm:"column:result_urls;type:text[]"`
	ErrorMessage   *string         `gorm:"column:error_message"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt    *time.Time      `gorm:"column:completed_at"`
}

func (GenerationJob) TableName() string {
	return "generation_jobs"
}
