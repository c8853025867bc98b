package repository

import (
	"context"
	"errors"
	"time"

	"github.com/libsync/exportd/internal/domain"
	"gorm.io/gorm"
)

// JobRepository persists export jobs and their chunk outcomes.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new export job row.
func (r *JobRepository) Create(ctx context.Context, job *domain.ExportJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Update saves the current state of a job row.
func (r *JobRepository) Update(ctx context.Context, job *domain.ExportJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// AddOutcome appends one chunk outcome to a job.
func (r *JobRepository) AddOutcome(ctx context.Context, outcome *domain.ChunkOutcome) error {
	return r.db.WithContext(ctx).Create(outcome).Error
}

// GetByID retrieves a job with its outcomes ordered by chunk sequence.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ExportJob, error) {
	var job domain.ExportJob
	if err := r.db.WithContext(ctx).
		Preload("Outcomes", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// LatestSuccessful returns the start time of the newest job of the
// given export type that ended Successful or PartiallyFailed, or nil if
// the type has never completed. PartiallyFailed counts because its
// loaded chunks are valid; the operator re-runs the failed remainder.
// The start time, not the completion time, anchors the next window so
// records updated while the job ran are not skipped.
func (r *JobRepository) LatestSuccessful(ctx context.Context, exportType string) (*time.Time, error) {
	var job domain.ExportJob
	err := r.db.WithContext(ctx).
		Where("export_type = ?", exportType).
		Where("status IN ?", []domain.JobStatus{
			domain.JobStatusSuccessful,
			domain.JobStatusPartiallyFailed,
		}).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if job.StartedAt != nil {
		return job.StartedAt, nil
	}
	return &job.CreatedAt, nil
}

// ListRecent returns the most recent jobs, newest first.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]domain.ExportJob, error) {
	var jobs []domain.ExportJob
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
