package queue

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/revaspay/loyalty/internal/models"
)

// GormDeadLetterStore persists failed jobs to the failed_jobs table
type GormDeadLetterStore struct {
	db *gorm.DB
}

// NewGormDeadLetterStore creates a new dead letter store
func NewGormDeadLetterStore(db *gorm.DB) *GormDeadLetterStore {
	return &GormDeadLetterStore{db: db}
}

// Record stores job, keeping the first record if the job fails twice
func (s *GormDeadLetterStore) Record(ctx context.Context, job Job, cause error) error {
	failed := models.FailedJob{
		Queue:    job.Queue,
		JobID:    job.ID,
		Payload:  string(job.Payload),
		Error:    cause.Error(),
		Attempts: job.RetryCount + 1,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&failed).Error
	if err != nil {
		return fmt.Errorf("failed to record failed job: %w", err)
	}
	return nil
}

// List returns the most recent failed jobs
func (s *GormDeadLetterStore) List(ctx context.Context, limit int) ([]models.FailedJob, error) {
	var failed []models.FailedJob
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&failed).Error; err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}
	return failed, nil
}
