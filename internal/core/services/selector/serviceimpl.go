package selector

import (
	"context"
	"fmt"

	"gitlab.com/vidfleet.net/internal/config"
	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/core/ports/secondary"
	"gitlab.com/vidfleet.net/internal/core/services/registry"
	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/static/errs"
)

var _ ISelectorService = (*SelectorService)(nil)

const (
	reasonPreferredWorker = "preferred_worker"
	reasonLowestScore     = "lowest_score"
)

// SelectorService implements worker selection
type SelectorService struct {
	registry    registry.IRegistryService
	projectRepo secondary.ProjectRepository
	cfg         *config.SchedulerCfg
	logger      primary.Logger
}

// NewSelectorService creates a new selector service
func NewSelectorService(
	reg registry.IRegistryService,
	projectRepo secondary.ProjectRepository,
	cfg *config.SchedulerCfg,
	logger primary.Logger,
) *SelectorService {
	return &SelectorService{
		registry:    reg,
		projectRepo: projectRepo,
		cfg:         cfg,
		logger:      logger,
	}
}

// SelectBestWorker implements the placement algorithm described on
// ISelectorService.
func (s *SelectorService) SelectBestWorker(ctx context.Context, projectID string, requiredPlatforms []string, kind domain.CapabilityKind) (*domain.SelectionResult, error) {
	// ListOnline refreshes staleness first, so workers past the heartbeat
	// window never receive work.
	online, err := s.registry.ListOnline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list online workers: %w", err)
	}

	matching := make([]*domain.WorkerInfo, 0, len(online))
	for _, worker := range online {
		if worker.MatchesKind(kind) {
			matching = append(matching, worker)
		}
	}
	if len(matching) == 0 {
		return nil, errs.NoWorkerAvailable
	}

	// Preferred worker is a hard override: no scoring when the project has
	// pinned a worker and that worker can take the job.
	if preferred := s.preferredWorker(ctx, projectID, matching); preferred != nil {
		s.logger.Info("Selected preferred worker", "projectId", projectID, "workerId", preferred.ID)
		return result(preferred, 0, reasonPreferredWorker), nil
	}

	underCapacity := make([]*domain.WorkerInfo, 0, len(matching))
	for _, worker := range matching {
		if worker.HasCapacity() {
			underCapacity = append(underCapacity, worker)
		}
	}
	if len(underCapacity) == 0 {
		return nil, errs.AllWorkersAtCapacity
	}

	// Platform capability is advisory: declared lists go stale, so an empty
	// intersection falls back to every under-capacity worker.
	candidates := make([]*domain.WorkerInfo, 0, len(underCapacity))
	for _, worker := range underCapacity {
		if worker.Capabilities.HasPlatforms(requiredPlatforms) {
			candidates = append(candidates, worker)
		}
	}
	if len(candidates) == 0 {
		s.logger.Warn("No worker declares all required platforms, ignoring platform filter",
			"platforms", requiredPlatforms, "kind", kind)
		candidates = underCapacity
	}

	best := candidates[0]
	bestScore := s.score(best)
	for _, worker := range candidates[1:] {
		workerScore := s.score(worker)
		if workerScore < bestScore ||
			(workerScore == bestScore && worker.LastHeartbeat.After(best.LastHeartbeat)) {
			best = worker
			bestScore = workerScore
		}
	}

	s.logger.Debug("Selected worker by score",
		"workerId", best.ID, "score", bestScore, "load", best.CurrentLoad, "capacity", best.MaxConcurrentTasks)
	return result(best, bestScore, reasonLowestScore), nil
}

func (s *SelectorService) preferredWorker(ctx context.Context, projectID string, matching []*domain.WorkerInfo) *domain.WorkerInfo {
	if projectID == "" || s.projectRepo == nil {
		return nil
	}

	preferredID, err := s.projectRepo.GetPreferredWorkerID(ctx, projectID)
	if err != nil {
		s.logger.Error("Failed to look up preferred worker", "projectId", projectID, "error", err)
		return nil
	}
	if preferredID == "" {
		return nil
	}

	for _, worker := range matching {
		if worker.ID == preferredID && worker.HasCapacity() {
			return worker
		}
	}
	return nil
}

// score is the placement cost of a worker: lower is better. Load ratio is
// scaled to a 0-100 range to match the cpu/memory percentages.
func (s *SelectorService) score(worker *domain.WorkerInfo) float64 {
	loadRatio := 0.0
	if worker.MaxConcurrentTasks > 0 {
		loadRatio = float64(worker.CurrentLoad) / float64(worker.MaxConcurrentTasks) * 100
	}
	return s.cfg.LoadWeight*loadRatio + s.cfg.CPUWeight*worker.CPUUsage + s.cfg.MemoryWeight*worker.MemoryUsage
}

func result(worker *domain.WorkerInfo, score float64, reason string) *domain.SelectionResult {
	return &domain.SelectionResult{
		WorkerID:    worker.ID,
		WorkerName:  worker.Name,
		Score:       score,
		Reason:      reason,
		CurrentLoad: worker.CurrentLoad,
		Capacity:    worker.MaxConcurrentTasks,
		CPUUsage:    worker.CPUUsage,
		MemoryUsage: worker.MemoryUsage,
		Platforms:   worker.Capabilities.Platforms,
	}
}
