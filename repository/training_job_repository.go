package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/faceidbackend/models"
	"gorm.io/gorm"
)

// TrainingJobRepository handles database operations for TrainingJob entities
type TrainingJobRepository struct {
	DB *gorm.DB
}

// NewTrainingJobRepository creates a new instance of TrainingJobRepository
func NewTrainingJobRepository(db *gorm.DB) *TrainingJobRepository {
	return &TrainingJobRepository{DB: db}
}

// Create creates a new training job in the pending state
func (r *TrainingJobRepository) Create(job *models.TrainingJob) error {
	if job.CreatedAt == 0 {
		job.CreatedAt = time.Now().Unix()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.TrainingType == "" {
		job.TrainingType = models.TrainingIncremental
	}

	err := r.DB.Create(job).Error
	if err != nil {
		return fmt.Errorf("failed to create training job for person ID %d: %w", job.PersonID, err)
	}
	return nil
}

// GetByID retrieves a training job with its person preloaded
func (r *TrainingJobRepository) GetByID(id uint) (*models.TrainingJob, error) {
	var job models.TrainingJob
	err := r.DB.Preload("Person").First(&job, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get training job by ID %d: %w", id, err)
	}
	return &job, nil
}

// List retrieves recent jobs, newest first
func (r *TrainingJobRepository) List(limit int) ([]models.TrainingJob, error) {
	var jobs []models.TrainingJob
	query := r.DB.Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list training jobs: %w", err)
	}
	return jobs, nil
}

// ListPending retrieves pending jobs oldest first, up to limit
func (r *TrainingJobRepository) ListPending(limit int) ([]models.TrainingJob, error) {
	var jobs []models.TrainingJob
	query := r.DB.Where("status = ?", models.JobStatusPending).Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending training jobs: %w", err)
	}
	return jobs, nil
}

// HasActiveJob reports whether a person already has a pending or running job
func (r *TrainingJobRepository) HasActiveJob(personID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&models.TrainingJob{}).
		Where("person_id = ? AND status IN ?", personID, []string{models.JobStatusPending, models.JobStatusRunning}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check active jobs for person ID %d: %w", personID, err)
	}
	return count > 0, nil
}

// MarkRunning moves a pending job into the running state
func (r *TrainingJobRepository) MarkRunning(jobID uint, startedAt int64) error {
	result := r.DB.Model(&models.TrainingJob{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     models.JobStatusRunning,
			"started_at": startedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark training job ID %d running: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Finish moves a running job to a terminal completed/failed state
func (r *TrainingJobRepository) Finish(jobID uint, status string, facesAdded, facesFailed int, successRate float64, errMsg *string, completedAt int64) error {
	result := r.DB.Model(&models.TrainingJob{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":        status,
			"faces_added":   facesAdded,
			"faces_failed":  facesFailed,
			"success_rate":  successRate,
			"error_message": errMsg,
			"completed_at":  completedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish training job ID %d: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Cancel marks a pending or running job cancelled. Cancelled is terminal and
// not retryable; in-flight uploads are allowed to finish.
func (r *TrainingJobRepository) Cancel(jobID uint) error {
	result := r.DB.Model(&models.TrainingJob{}).
		Where("id = ? AND status IN ?", jobID, []string{models.JobStatusPending, models.JobStatusRunning}).
		Updates(map[string]interface{}{
			"status":       models.JobStatusCancelled,
			"completed_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to cancel training job ID %d: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Requeue returns a failed job to pending with its counters reset
func (r *TrainingJobRepository) Requeue(jobID uint) error {
	result := r.DB.Model(&models.TrainingJob{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusFailed).
		Updates(map[string]interface{}{
			"status":        models.JobStatusPending,
			"faces_added":   0,
			"faces_failed":  0,
			"success_rate":  0,
			"error_message": gorm.Expr("NULL"),
			"started_at":    gorm.Expr("NULL"),
			"completed_at":  gorm.Expr("NULL"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to requeue training job ID %d: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
