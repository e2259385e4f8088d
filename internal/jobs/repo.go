package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/starfall-ai/starfall-backend/pkg/db/models"
	"github.com/starfall-ai/starfall-backend/pkg/enums"
)

// Repository manages persistence for generation jobs. Every status
// transition is a guarded conditional update: the WHERE clause names
// the expected current status, so concurrent writers cannot move a job
// backwards or double-apply a transition.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, job *models.GenerationJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
	GetByProviderTaskID(ctx context.Context, providerTaskID string) (*models.GenerationJob, error)
	GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.GenerationJob, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, providerTaskID string) (bool, error)
	MarkSuccess(ctx context.Context, id uuid.UUID, resultURLs []string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, from enums.JobStatus, message string) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error)
	ListProcessingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.GenerationJob, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a job repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, job *models.GenerationJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	var job models.GenerationJob
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *repository) GetByProviderTaskID(ctx context.Context, providerTaskID string) (*models.GenerationJob, error) {
	var job models.GenerationJob
	if err := r.db.WithContext(ctx).
		Where("provider_task_id = ?", providerTaskID).
		First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *repository) GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.GenerationJob, error) {
	var job models.GenerationJob
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		Order("created_at DESC").
		First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// MarkProcessing records the upstream acceptance, queued -> processing.
func (r *repository) MarkProcessing(ctx context.Context, id uuid.UUID, providerTaskID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", id, enums.JobStatusQueued).
		Updates(map[string]any{
			"status":           enums.JobStatusProcessing,
			"provider_task_id": providerTaskID,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkSuccess completes a job, processing -> success. Returns false if
// the job was not in processing, which callers treat as a duplicate or
// late signal.
func (r *repository) MarkSuccess(ctx context.Context, id uuid.UUID, resultURLs []string) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", id, enums.JobStatusProcessing).
		Updates(map[string]any{
			"status":       enums.JobStatusSuccess,
			"result_urls":  pqStringArray(resultURLs),
			"updated_at":   now,
			"completed_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkFailed moves a job to failed from the expected prior status.
func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, from enums.JobStatus, message string) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":        enums.JobStatusFailed,
			"error_message": message,
			"updated_at":    now,
			"completed_at":  now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkCancelled cancels a job that has not yet reached a terminal state.
func (r *repository) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ? AND status IN ?", id, []enums.JobStatus{enums.JobStatusQueued, enums.JobStatusProcessing}).
		Updates(map[string]any{
			"status":       enums.JobStatusCancelled,
			"updated_at":   now,
			"completed_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func pqStringArray(urls []string) pq.StringArray {
	if len(urls) == 0 {
		return pq.StringArray{}
	}
	return pq.StringArray(urls)
}

// ListProcessingBefore returns jobs stuck in processing since before the
// cutoff, oldest first, for the polling fallback.
func (r *repository) ListProcessingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.GenerationJob, error) {
	var jobsList []models.GenerationJob
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", enums.JobStatusProcessing, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobsList).Error; err != nil {
		return nil, err
	}
	return jobsList, nil
}
