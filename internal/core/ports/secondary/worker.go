package secondary

import (
	"context"

	"gitlab.com/vidfleet.net/internal/domain"
)

type WorkerRepository interface {
	// SaveWorker upserts worker information
	SaveWorker(ctx context.Context, worker *domain.WorkerInfo) error

	// GetWorker retrieves worker information by ID, nil when unknown
	GetWorker(ctx context.Context, workerID string) (*domain.WorkerInfo, error)

	// GetAllWorkers retrieves every registered worker
	GetAllWorkers(ctx context.Context) ([]*domain.WorkerInfo, error)

	// DeleteWorker removes a worker permanently
	DeleteWorker(ctx context.Context, workerID string) error

	// AdjustLoad atomically changes a worker's load counter by delta,
	// clamped at zero, and returns the updated worker
	AdjustLoad(ctx context.Context, workerID string, delta int) (*domain.WorkerInfo, error)
}
