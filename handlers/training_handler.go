package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/camden-git/faceidbackend/models"
	"github.com/camden-git/faceidbackend/repository"
	"github.com/camden-git/faceidbackend/services"
	"github.com/go-chi/chi/v5"
)

// TrainingHandler serves the training queue and batch recognition surface.
type TrainingHandler struct {
	Training    *services.TrainingService
	Recognition *services.RecognitionService
	JobRepo     repository.TrainingJobRepositoryInterface
}

// QueueTraining queues a training job for a person.
// POST /api/people/{person_id}/train
func (th *TrainingHandler) QueueTraining(w http.ResponseWriter, r *http.Request) {
	personID, err := parseIDParam(chi.URLParam(r, "person_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid person ID format")
		return
	}

	var req struct {
		TrainingType string `json:"training_type,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
			return
		}
	}

	job, err := th.Training.QueueTraining(personID, req.TrainingType)
	if err != nil {
		writeServiceError(w, "training job", err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// ListJobs lists recent training jobs, newest first.
func (th *TrainingHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid limit value")
			return
		}
		limit = parsed
	}
	jobs, err := th.JobRepo.List(limit)
	if err != nil {
		writeServiceError(w, "training job list", err)
		return
	}
	if jobs == nil {
		jobs = []models.TrainingJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetJob returns one training job.
func (th *TrainingHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseIDParam(chi.URLParam(r, "job_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid job ID format")
		return
	}
	job, err := th.JobRepo.GetByID(jobID)
	if err != nil {
		writeServiceError(w, "training job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob cancels a pending or running job.
func (th *TrainingHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseIDParam(chi.URLParam(r, "job_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid job ID format")
		return
	}
	if err := th.Training.CancelJob(jobID); err != nil {
		writeServiceError(w, "job cancellation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryJob returns a failed job to the pending queue.
func (th *TrainingHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseIDParam(chi.URLParam(r, "job_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid job ID format")
		return
	}
	if err := th.Training.RetryJob(jobID); err != nil {
		writeServiceError(w, "job retry", err)
		return
	}
	job, err := th.JobRepo.GetByID(jobID)
	if err != nil {
		writeServiceError(w, "training job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ProcessQueue runs one synchronous pass over the pending queue, in addition
// to the background worker's periodic passes.
func (th *TrainingHandler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	summary, err := th.Training.ProcessQueue(r.Context())
	if err != nil {
		writeServiceError(w, "queue processing", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// BatchRecognize runs engine recognition over a set of images.
// POST /api/recognition/batch
func (th *TrainingHandler) BatchRecognize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImagePaths []string `json:"image_paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	result, err := th.Recognition.BatchRecognize(r.Context(), req.ImagePaths)
	if err != nil {
		writeServiceError(w, "batch recognition", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
