package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/core/ports/secondary"
	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/static/errs"
)

var _ IRegistryService = (*RegistryService)(nil)

// RegistryService implements the worker registry over a WorkerRepository
type RegistryService struct {
	workerRepo      secondary.WorkerRepository
	heartbeatWindow time.Duration
	logger          primary.Logger
	now             func() time.Time
}

// NewRegistryService creates a new registry service
func NewRegistryService(workerRepo secondary.WorkerRepository, heartbeatWindow time.Duration, logger primary.Logger) *RegistryService {
	return &RegistryService{
		workerRepo:      workerRepo,
		heartbeatWindow: heartbeatWindow,
		logger:          logger,
		now:             time.Now,
	}
}

// Register upserts a worker, preserving its load counter across reconnects
func (s *RegistryService) Register(ctx context.Context, req RegisterRequest) (*domain.WorkerInfo, error) {
	s.logger.Info("Registering worker", "workerId", req.WorkerID, "kind", req.Capabilities.Kind)

	existing, err := s.workerRepo.GetWorker(ctx, req.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up worker: %w", err)
	}

	worker := &domain.WorkerInfo{
		ID:                 req.WorkerID,
		Name:               req.Name,
		Hostname:           req.Hostname,
		IPAddress:          req.IPAddress,
		Capabilities:       req.Capabilities,
		MaxConcurrentTasks: req.MaxConcurrentTasks,
		Status:             domain.WorkerStatusOnline,
		LastHeartbeat:      s.now(),
		Metadata:           req.Metadata,
	}
	if existing != nil {
		// A worker re-registering after a reconnect may still hold jobs.
		worker.CurrentLoad = existing.CurrentLoad
		worker.CPUUsage = existing.CPUUsage
		worker.MemoryUsage = existing.MemoryUsage
	}

	if err := s.workerRepo.SaveWorker(ctx, worker); err != nil {
		s.logger.Error("Failed to save worker", "workerId", req.WorkerID, "error", err)
		return nil, fmt.Errorf("failed to register worker: %w", err)
	}

	return worker, nil
}

// Heartbeat updates health fields and flips the worker online
func (s *RegistryService) Heartbeat(ctx context.Context, workerID string, load int, cpu, mem float64, metadata map[string]string) (*domain.WorkerInfo, error) {
	s.logger.Debug("Received worker heartbeat", "workerId", workerID, "load", load)

	worker, err := s.workerRepo.GetWorker(ctx, workerID)
	if err != nil {
		s.logger.Error("Failed to get worker for heartbeat", "workerId", workerID, "error", err)
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	if worker == nil {
		return nil, errs.WorkerNotFound
	}

	worker.CurrentLoad = load
	worker.CPUUsage = cpu
	worker.MemoryUsage = mem
	worker.Status = domain.WorkerStatusOnline
	worker.LastHeartbeat = s.now()
	if metadata != nil {
		worker.Metadata = metadata
	}

	if err := s.workerRepo.SaveWorker(ctx, worker); err != nil {
		s.logger.Error("Failed to update worker heartbeat", "workerId", workerID, "error", err)
		return nil, fmt.Errorf("failed to update worker heartbeat: %w", err)
	}

	return worker, nil
}

// refreshStaleness flips workers past the heartbeat window to offline and
// returns the refreshed set. The flip is persisted so readers agree.
func (s *RegistryService) refreshStaleness(ctx context.Context) ([]*domain.WorkerInfo, error) {
	workers, err := s.workerRepo.GetAllWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get workers: %w", err)
	}

	now := s.now()
	for _, worker := range workers {
		if worker.Status == domain.WorkerStatusOnline && worker.Stale(now, s.heartbeatWindow) {
			worker.Status = domain.WorkerStatusOffline
			if err := s.workerRepo.SaveWorker(ctx, worker); err != nil {
				s.logger.Error("Failed to mark worker offline", "workerId", worker.ID, "error", err)
			} else {
				s.logger.Warn("Worker went stale", "workerId", worker.ID, "lastHeartbeat", worker.LastHeartbeat)
			}
		}
	}

	return workers, nil
}

// ListOnline refreshes staleness, then returns online workers, most
// recently seen first
func (s *RegistryService) ListOnline(ctx context.Context) ([]*domain.WorkerInfo, error) {
	workers, err := s.refreshStaleness(ctx)
	if err != nil {
		return nil, err
	}

	online := make([]*domain.WorkerInfo, 0, len(workers))
	for _, worker := range workers {
		if worker.Status == domain.WorkerStatusOnline {
			online = append(online, worker)
		}
	}

	sort.Slice(online, func(i, j int) bool {
		return online[i].LastHeartbeat.After(online[j].LastHeartbeat)
	})

	return online, nil
}

// ListAll returns every registered worker after a staleness refresh
func (s *RegistryService) ListAll(ctx context.Context) ([]*domain.WorkerInfo, error) {
	return s.refreshStaleness(ctx)
}

// Unregister hard-deletes a worker
func (s *RegistryService) Unregister(ctx context.Context, workerID string) error {
	s.logger.Info("Unregistering worker", "workerId", workerID)

	if err := s.workerRepo.DeleteWorker(ctx, workerID); err != nil {
		return fmt.Errorf("failed to unregister worker: %w", err)
	}
	return nil
}

// GetWorker returns a worker by ID, nil when unknown
func (s *RegistryService) GetWorker(ctx context.Context, workerID string) (*domain.WorkerInfo, error) {
	return s.workerRepo.GetWorker(ctx, workerID)
}

// IncrementLoad bumps the worker's load counter by one
func (s *RegistryService) IncrementLoad(ctx context.Context, workerID string) (*domain.WorkerInfo, error) {
	return s.workerRepo.AdjustLoad(ctx, workerID, 1)
}

// DecrementLoad lowers the worker's load counter by one, clamped at zero
func (s *RegistryService) DecrementLoad(ctx context.Context, workerID string) (*domain.WorkerInfo, error) {
	return s.workerRepo.AdjustLoad(ctx, workerID, -1)
}

// OfflineWorkerIDs returns the IDs of workers currently past the heartbeat
// window
func (s *RegistryService) OfflineWorkerIDs(ctx context.Context) ([]string, error) {
	workers, err := s.refreshStaleness(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0)
	for _, worker := range workers {
		if worker.Status == domain.WorkerStatusOffline {
			ids = append(ids, worker.ID)
		}
	}
	return ids, nil
}
