package secondary

import (
	"context"

	"github.com/google/uuid"

	"gitlab.com/vidfleet.net/internal/domain"
)

type JobRepository interface {
	// CreateJob persists a new pending job
	CreateJob(ctx context.Context, job *domain.Job) error

	// GetJob retrieves a job by ID, nil when unknown
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)

	// GetPendingJobs retrieves unassigned pending jobs, highest priority
	// first, oldest first within a priority
	GetPendingJobs(ctx context.Context, limit int) ([]*domain.Job, error)

	// ClaimAndAssignNext claims the best eligible pending job for the given
	// capability kind and assigns it to workerID in a single transaction,
	// skipping rows locked by concurrent claimants. Returns nil when no
	// eligible job exists. An empty platform matches any platform.
	ClaimAndAssignNext(ctx context.Context, kind domain.CapabilityKind, platform string, workerID string) (*domain.Job, error)

	// Assign marks a specific pending job as assigned to workerID.
	// Returns errs.JobNotPending when the job was already taken.
	Assign(ctx context.Context, jobID uuid.UUID, workerID string) error

	// GetAssignedForWorker returns the worker's highest-priority assigned
	// job, nil when it has none
	GetAssignedForWorker(ctx context.Context, workerID string) (*domain.Job, error)

	// MarkProcessing flips an assigned job to processing on hand-off
	MarkProcessing(ctx context.Context, jobID uuid.UUID) error

	// UpdateStatus sets a terminal or intermediate status and returns the
	// updated job
	UpdateStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, errorMessage *string) (*domain.Job, error)

	// GetStaleProcessing returns processing jobs whose assigned worker is in
	// the given set of offline worker IDs
	GetStaleProcessing(ctx context.Context, offlineWorkerIDs []string) ([]*domain.Job, error)

	// Release returns a job to the pending pool, clearing its worker
	Release(ctx context.Context, jobID uuid.UUID) error
}
