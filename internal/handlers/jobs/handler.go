package jobs

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/core/services/jobstore"
	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/handlers"
	"gitlab.com/vidfleet.net/internal/static/errs"
)

// JobHandler handles job API requests
type JobHandler struct {
	jobStore jobstore.IJobStoreService
	logger   primary.Logger
}

func NewJobHandler(jobStore jobstore.IJobStoreService, logger primary.Logger) *JobHandler {
	return &JobHandler{
		jobStore: jobStore,
		logger:   logger,
	}
}

func (h *JobHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/jobs", h.CreateJob).Methods("POST")
	r.HandleFunc("/api/jobs/next/{workerId}", handlers.RequireOwnWorkerID(h.NextForWorker)).Methods("GET")
	r.HandleFunc("/api/jobs/{jobId}/status", h.UpdateStatus).Methods("PATCH")
	r.HandleFunc("/api/jobs/{jobId}", h.GetJob).Methods("GET")
}

// CreateJobRequest represents a request to enqueue a job
type CreateJobRequest struct {
	VideoID  *string                `json:"video_id,omitempty"`
	Platform string                 `json:"platform"`
	Priority int                    `json:"priority"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// CreateJob enqueues a new pending job
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode create job request", "error", err)
		handlers.ResponseError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Platform == "" {
		handlers.ResponseError(w, "platform is required", http.StatusBadRequest)
		return
	}

	job, err := h.jobStore.CreateJob(r.Context(), req.VideoID, req.Platform, req.Priority, req.Metadata)
	if err != nil {
		h.logger.Error("Failed to create job", "error", err)
		handlers.ResponseError(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	handlers.ResponseWithJson(w, http.StatusCreated, job)
}

// GetJob returns one job by ID
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(mux.Vars(r)["jobId"])
	if err != nil {
		handlers.ResponseError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to get job", "jobId", jobID, "error", err)
		handlers.ResponseError(w, "Failed to get job", http.StatusInternalServerError)
		return
	}
	if job == nil {
		handlers.ResponseError(w, "Job not found", http.StatusNotFound)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, job)
}

// NextForWorker hands the calling worker its next job. 204 when the queue
// has nothing for it.
func (h *JobHandler) NextForWorker(w http.ResponseWriter, r *http.Request) {
	workerID := mux.Vars(r)["workerId"]

	job, err := h.jobStore.NextForWorker(r.Context(), workerID)
	if err != nil {
		if errors.Is(err, errs.WorkerNotFound) {
			handlers.ResponseError(w, "Worker not registered", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to fetch next job", "workerId", workerID, "error", err)
		handlers.ResponseError(w, "Failed to fetch next job", http.StatusInternalServerError)
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, job)
}

// UpdateStatusRequest represents a worker-reported status transition
type UpdateStatusRequest struct {
	Status       domain.JobStatus      `json:"status"`
	ErrorMessage *string               `json:"error_message,omitempty"`
	ResultData   *domain.JobResultData `json:"result_data,omitempty"`
}

// UpdateStatus applies a status transition to a job
func (h *JobHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(mux.Vars(r)["jobId"])
	if err != nil {
		handlers.ResponseError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode status update", "jobId", jobID, "error", err)
		handlers.ResponseError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	switch req.Status {
	case domain.JobStatusProcessing, domain.JobStatusCompleted, domain.JobStatusFailed:
	default:
		handlers.ResponseError(w, "Invalid status", http.StatusBadRequest)
		return
	}

	job, err := h.jobStore.UpdateStatus(r.Context(), jobID, req.Status, req.ErrorMessage, req.ResultData)
	if err != nil {
		switch {
		case errors.Is(err, errs.JobNotFound):
			handlers.ResponseError(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, errs.InvalidStatus):
			handlers.ResponseError(w, "Invalid status transition", http.StatusConflict)
		default:
			h.logger.Error("Failed to update job status", "jobId", jobID, "error", err)
			handlers.ResponseError(w, "Failed to update job status", http.StatusInternalServerError)
		}
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, job)
}
