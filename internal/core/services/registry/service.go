package registry

import (
	"context"

	"gitlab.com/vidfleet.net/internal/domain"
)

// RegisterRequest carries everything a worker declares at registration.
type RegisterRequest struct {
	WorkerID           string
	Name               string
	Hostname           string
	IPAddress          string
	Capabilities       domain.Capabilities
	MaxConcurrentTasks int
	Metadata           map[string]string
}

// IRegistryService defines the worker registry contract
type IRegistryService interface {
	// Register upserts a worker. Current load survives re-registration: a
	// worker may reconnect mid-job and must not have its counter reset.
	Register(ctx context.Context, req RegisterRequest) (*domain.WorkerInfo, error)

	// Heartbeat updates health fields and flips the worker online.
	// Returns errs.WorkerNotFound for unknown workers; the caller must
	// re-register.
	Heartbeat(ctx context.Context, workerID string, load int, cpu, mem float64, metadata map[string]string) (*domain.WorkerInfo, error)

	// ListOnline refreshes staleness, then returns online workers, most
	// recently seen first
	ListOnline(ctx context.Context) ([]*domain.WorkerInfo, error)

	// ListAll returns every registered worker after a staleness refresh
	ListAll(ctx context.Context) ([]*domain.WorkerInfo, error)

	// Unregister hard-deletes a worker
	Unregister(ctx context.Context, workerID string) error

	// GetWorker returns a worker by ID, nil when unknown
	GetWorker(ctx context.Context, workerID string) (*domain.WorkerInfo, error)

	// IncrementLoad / DecrementLoad adjust the load counter around job
	// assignment and release. Decrement clamps at zero.
	IncrementLoad(ctx context.Context, workerID string) (*domain.WorkerInfo, error)
	DecrementLoad(ctx context.Context, workerID string) (*domain.WorkerInfo, error)

	// OfflineWorkerIDs returns the IDs of workers currently past the
	// heartbeat window
	OfflineWorkerIDs(ctx context.Context) ([]string, error)
}
