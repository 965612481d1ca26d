package jobstore

import (
	"context"

	"github.com/google/uuid"

	"gitlab.com/vidfleet.net/internal/domain"
)

// IJobStoreService defines the job lifecycle contract
type IJobStoreService interface {
	// CreateJob enqueues a new pending job
	CreateJob(ctx context.Context, videoID *string, platform string, priority int, metadata map[string]interface{}) (*domain.Job, error)

	// GetJob retrieves a job by ID, nil when unknown
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)

	// AssignToWorker assigns a specific pending job to a worker and bumps
	// the worker's load. Scheduler path.
	AssignToWorker(ctx context.Context, jobID uuid.UUID, workerID string) error

	// NextForWorker is the poll path: hand back the worker's own assigned
	// job if it has one, otherwise claim a fresh pending job matching the
	// worker's capability kind. The returned job is in processing state.
	// Nil when there is nothing for the worker to do.
	NextForWorker(ctx context.Context, workerID string) (*domain.Job, error)

	// UpdateStatus applies a worker-reported status. Terminal statuses
	// release the worker's load slot and route result data to the
	// appropriate downstream sink; publish failures and successes update
	// the owning video's aggregate publish status.
	UpdateStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, errorMessage *string, resultData *domain.JobResultData) (*domain.Job, error)

	// ReleaseOrphans returns assigned/processing jobs of offline workers to
	// the pending pool. Only called when stale release is enabled.
	ReleaseOrphans(ctx context.Context, offlineWorkerIDs []string) (int, error)
}
