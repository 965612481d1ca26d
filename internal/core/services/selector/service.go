package selector

import (
	"context"

	"gitlab.com/vidfleet.net/internal/domain"
)

// ISelectorService picks the best eligible worker for a piece of work
type ISelectorService interface {
	// SelectBestWorker scores online workers of the given kind against the
	// load/cpu/memory weights and returns the cheapest one. A project's
	// preferred worker, when online and under capacity, wins outright.
	// Returns errs.NoWorkerAvailable when no worker of the kind exists and
	// errs.AllWorkersAtCapacity when all matching workers are full.
	SelectBestWorker(ctx context.Context, projectID string, requiredPlatforms []string, kind domain.CapabilityKind) (*domain.SelectionResult, error)
}
