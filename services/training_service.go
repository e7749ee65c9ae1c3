package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/camden-git/faceidbackend/models"
	"github.com/camden-git/faceidbackend/recognition"
	"github.com/camden-git/faceidbackend/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// TrainingConfig carries the queue's concurrency knobs.
type TrainingConfig struct {
	// MaxConcurrentJobs bounds how many persons' jobs run at once
	MaxConcurrentJobs int
	// UploadConcurrency bounds simultaneous uploads within one job; kept
	// small to respect the engine's rate limits
	UploadConcurrency int
}

// TrainingService runs the recognition training queue: it batches a
// person's assigned, not-yet-synced faces and uploads them to the external
// engine under bounded concurrency, recording per-face outcomes.
type TrainingService struct {
	jobRepo    repository.TrainingJobRepositoryInterface
	faceRepo   repository.FaceRepositoryInterface
	personRepo repository.PersonRepositoryInterface
	engine     recognition.Engine
	images     ImageSource
	cfg        TrainingConfig
}

// NewTrainingService creates a new training service
func NewTrainingService(
	jobRepo repository.TrainingJobRepositoryInterface,
	faceRepo repository.FaceRepositoryInterface,
	personRepo repository.PersonRepositoryInterface,
	engine recognition.Engine,
	images ImageSource,
	cfg TrainingConfig,
) *TrainingService {
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}
	if cfg.UploadConcurrency < 1 {
		cfg.UploadConcurrency = 1
	}
	return &TrainingService{
		jobRepo:    jobRepo,
		faceRepo:   faceRepo,
		personRepo: personRepo,
		engine:     engine,
		images:     images,
		cfg:        cfg,
	}
}

// QueueTraining creates a pending training job for a person. A person can
// have at most one pending or running job at a time.
func (s *TrainingService) QueueTraining(personID uint, trainingType string) (*models.TrainingJob, error) {
	switch trainingType {
	case models.TrainingFull, models.TrainingIncremental, models.TrainingValidation:
	case "":
		trainingType = models.TrainingIncremental
	default:
		return nil, NewValidationError("unknown training type %q", trainingType)
	}
	if _, err := s.personRepo.GetByID(personID); err != nil {
		return nil, err
	}
	active, err := s.jobRepo.HasActiveJob(personID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, NewValidationError("person %d already has a pending or running training job", personID)
	}

	job := &models.TrainingJob{
		PersonID:     personID,
		TrainingType: trainingType,
	}
	if err := s.jobRepo.Create(job); err != nil {
		return nil, err
	}
	return job, nil
}

// QueueSummary reports one pass over the pending queue.
type QueueSummary struct {
	JobsProcessed int      `json:"jobs_processed"`
	JobsCompleted int      `json:"jobs_completed"`
	JobsFailed    int      `json:"jobs_failed"`
	FacesUploaded int      `json:"faces_uploaded"`
	FacesFailed   int      `json:"faces_failed"`
	Errors        []string `json:"errors,omitempty"`
}

// ProcessQueue runs up to MaxConcurrentJobs pending jobs concurrently. A
// failure in one job never blocks its siblings.
func (s *TrainingService) ProcessQueue(ctx context.Context) (*QueueSummary, error) {
	jobs, err := s.jobRepo.ListPending(s.cfg.MaxConcurrentJobs)
	if err != nil {
		return nil, err
	}

	summary := &QueueSummary{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentJobs)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			added, failed, err := s.processJob(ctx, &job)
			mu.Lock()
			defer mu.Unlock()
			summary.JobsProcessed++
			summary.FacesUploaded += added
			summary.FacesFailed += failed
			if err != nil {
				summary.JobsFailed++
				if len(summary.Errors) < 10 {
					summary.Errors = append(summary.Errors, fmt.Sprintf("job %d: %v", job.ID, err))
				}
			} else {
				summary.JobsCompleted++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

// processJob uploads one person's pending faces. It returns the per-face
// tallies; the returned error reflects a job-level failure, not individual
// upload failures.
func (s *TrainingService) processJob(ctx context.Context, job *models.TrainingJob) (int, int, error) {
	now := time.Now().Unix()
	if err := s.jobRepo.MarkRunning(job.ID, now); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// claimed or cancelled since listing; not ours anymore
			return 0, 0, nil
		}
		return 0, 0, err
	}

	person, err := s.personRepo.GetByID(job.PersonID)
	if err != nil {
		return 0, 0, s.failJob(job.ID, person, fmt.Errorf("person lookup failed: %w", err))
	}

	faces, err := s.faceRepo.ListForTraining(person.ID)
	if err != nil {
		return 0, 0, s.failJob(job.ID, person, err)
	}
	if len(faces) == 0 {
		// nothing to upload; the person's recognition status is untouched
		if err := s.jobRepo.Finish(job.ID, models.JobStatusCompleted, 0, 0, 100, nil, time.Now().Unix()); err != nil {
			return 0, 0, err
		}
		return 0, 0, nil
	}

	subjectID, err := s.ensureSubject(ctx, person)
	if err != nil {
		return 0, 0, s.failJob(job.ID, person, err)
	}

	if err := s.personRepo.UpdateRecognitionStatus(person.ID, models.RecognitionTraining); err != nil {
		return 0, 0, s.failJob(job.ID, person, err)
	}

	var mu sync.Mutex
	added, failed := 0, 0
	cancelled := false

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.UploadConcurrency)
	for _, face := range faces {
		// stop queuing further uploads once the job is cancelled;
		// in-flight uploads are allowed to finish
		current, err := s.jobRepo.GetByID(job.ID)
		if err == nil && current.Status == models.JobStatusCancelled {
			cancelled = true
			break
		}

		face := face
		g.Go(func() error {
			ok := s.uploadFace(gctx, subjectID, face)
			mu.Lock()
			if ok {
				added++
			} else {
				failed++
			}
			mu.Unlock()
			return nil
		})
	}
	// the person's status below must only change after every upload has
	// resolved one way or the other
	_ = g.Wait()

	finishedAt := time.Now().Unix()
	total := added + failed
	successRate := 100.0
	if total > 0 {
		successRate = float64(added) / float64(total) * 100
	}

	if cancelled {
		log.Printf("Training job %d for person %d cancelled after %d/%d uploads", job.ID, person.ID, added, len(faces))
		status := models.RecognitionUntrained
		if person.LastTrainedAt != nil || added > 0 {
			status = models.RecognitionTrained
		}
		if err := s.personRepo.CompleteTraining(person.ID, status, added, finishedAt); err != nil {
			return added, failed, err
		}
		return added, failed, nil
	}

	personStatus := models.RecognitionTrained
	jobStatus := models.JobStatusCompleted
	var errMsg *string
	if added == 0 && failed > 0 {
		personStatus = models.RecognitionFailed
		jobStatus = models.JobStatusFailed
		msg := fmt.Sprintf("all %d uploads failed", failed)
		errMsg = &msg
	}

	if err := s.jobRepo.Finish(job.ID, jobStatus, added, failed, successRate, errMsg, finishedAt); err != nil {
		return added, failed, err
	}
	if err := s.personRepo.CompleteTraining(person.ID, personStatus, added, finishedAt); err != nil {
		return added, failed, err
	}
	if jobStatus == models.JobStatusFailed {
		return added, failed, fmt.Errorf("all %d uploads failed for person %d", failed, person.ID)
	}
	log.Printf("Training job %d for person %d finished: %d uploaded, %d failed (%.0f%%)", job.ID, person.ID, added, failed, successRate)
	return added, failed, nil
}

// uploadFace sends one face crop to the engine, recording the outcome on
// the face row. Returns true on success. The client applies the retry
// policy; a failure here is final for this queue pass and the face stays
// eligible for the next one.
func (s *TrainingService) uploadFace(ctx context.Context, subjectID string, face models.DetectedFace) bool {
	crop, err := s.images.FaceCrop(face.ImagePath, face.XMin, face.YMin, face.XMax, face.YMax)
	if err != nil {
		log.Printf("Warning: failed to load crop for face %d (%s): %v", face.ID, face.ImagePath, err)
		if dbErr := s.faceRepo.UpdateSyncStatus(face.ID, models.SyncStatusSyncFailed, nil); dbErr != nil {
			log.Printf("Warning: failed to record sync failure for face %d: %v", face.ID, dbErr)
		}
		return false
	}

	handle, err := s.engine.AddFace(ctx, subjectID, crop, fmt.Sprintf("face_%d.jpg", face.ID))
	if err != nil {
		log.Printf("Warning: upload failed for face %d: %v", face.ID, err)
		if dbErr := s.faceRepo.UpdateSyncStatus(face.ID, models.SyncStatusSyncFailed, nil); dbErr != nil {
			log.Printf("Warning: failed to record sync failure for face %d: %v", face.ID, dbErr)
		}
		return false
	}

	if err := s.faceRepo.UpdateSyncStatus(face.ID, models.SyncStatusSynced, &handle); err != nil {
		log.Printf("Warning: face %d uploaded but status update failed: %v", face.ID, err)
		return false
	}
	return true
}

// ensureSubject returns the person's engine subject handle, minting and
// registering one on first training.
func (s *TrainingService) ensureSubject(ctx context.Context, person *models.Person) (string, error) {
	if person.ExternalSubjectID != nil && *person.ExternalSubjectID != "" {
		return *person.ExternalSubjectID, nil
	}
	subjectID := uuid.New().String()
	if _, err := s.engine.CreateSubject(ctx, subjectID); err != nil {
		return "", fmt.Errorf("failed to create engine subject for person %d: %w", person.ID, err)
	}
	if err := s.personRepo.SetExternalSubjectID(person.ID, subjectID); err != nil {
		return "", err
	}
	person.ExternalSubjectID = &subjectID
	return subjectID, nil
}

// failJob records a job-level failure and, when the person is known, marks
// their recognition status failed.
func (s *TrainingService) failJob(jobID uint, person *models.Person, cause error) error {
	msg := cause.Error()
	if err := s.jobRepo.Finish(jobID, models.JobStatusFailed, 0, 0, 0, &msg, time.Now().Unix()); err != nil {
		log.Printf("Warning: failed to record failure of training job %d: %v", jobID, err)
	}
	if person != nil {
		if err := s.personRepo.UpdateRecognitionStatus(person.ID, models.RecognitionFailed); err != nil {
			log.Printf("Warning: failed to update recognition status for person %d: %v", person.ID, err)
		}
	}
	return cause
}

// AutoTrain queues incremental jobs for people flagged auto_recognize whose
// training is stale and who have accumulated enough new faces. Returns the
// number of jobs queued.
func (s *TrainingService) AutoTrain(interval time.Duration, minFaces int) (int, error) {
	people, err := s.personRepo.ListAutoRecognize()
	if err != nil {
		return 0, err
	}

	queued := 0
	now := time.Now()
	for _, person := range people {
		if person.LastTrainedAt != nil && now.Sub(time.Unix(*person.LastTrainedAt, 0)) < interval {
			continue
		}
		pending, err := s.faceRepo.CountPendingSync(person.ID)
		if err != nil {
			return queued, err
		}
		if pending < int64(minFaces) {
			continue
		}
		active, err := s.jobRepo.HasActiveJob(person.ID)
		if err != nil {
			return queued, err
		}
		if active {
			continue
		}
		job := &models.TrainingJob{PersonID: person.ID, TrainingType: models.TrainingIncremental}
		if err := s.jobRepo.Create(job); err != nil {
			return queued, err
		}
		queued++
	}
	if queued > 0 {
		log.Printf("Auto-train queued %d training job(s)", queued)
	}
	return queued, nil
}

// CancelJob marks a pending or running job cancelled. Terminal and not
// retryable; faces already uploaded stay synced.
func (s *TrainingService) CancelJob(jobID uint) error {
	return s.jobRepo.Cancel(jobID)
}

// RetryJob returns a failed job to the pending queue.
func (s *TrainingService) RetryJob(jobID uint) error {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusCancelled {
		return NewValidationError("job %d was cancelled and cannot be retried", jobID)
	}
	if job.Status != models.JobStatusFailed {
		return NewValidationError("job %d is %s; only failed jobs can be retried", jobID, job.Status)
	}
	return s.jobRepo.Requeue(jobID)
}
