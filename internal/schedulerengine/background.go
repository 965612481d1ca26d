package schedulerengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"gitlab.com/vidfleet.net/internal/config"
	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/core/ports/secondary"
	"gitlab.com/vidfleet.net/internal/core/services/jobstore"
	"gitlab.com/vidfleet.net/internal/core/services/registry"
	"gitlab.com/vidfleet.net/internal/core/services/selector"
	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/metrics"
	"gitlab.com/vidfleet.net/internal/static/errs"
)

const pendingBatchSize = 100

// SchedulerEngine runs the coordinator's background loops: pending-job
// placement, scheduled-video materialization and the optional orphan sweep.
type SchedulerEngine struct {
	schedulerCfg *config.SchedulerCfg
	jobRepo      secondary.JobRepository
	videoRepo    secondary.VideoRepository
	jobStore     jobstore.IJobStoreService
	selector     selector.ISelectorService
	registry     registry.IRegistryService
	logger       primary.Logger
}

func NewSchedulerEngine(
	schedulerCfg *config.SchedulerCfg,
	jobRepo secondary.JobRepository,
	videoRepo secondary.VideoRepository,
	jobStore jobstore.IJobStoreService,
	sel selector.ISelectorService,
	reg registry.IRegistryService,
	logger primary.Logger,
) *SchedulerEngine {
	return &SchedulerEngine{
		schedulerCfg: schedulerCfg,
		jobRepo:      jobRepo,
		videoRepo:    videoRepo,
		jobStore:     jobStore,
		selector:     sel,
		registry:     reg,
		logger:       logger,
	}
}

// Start launches the background loops. They stop when ctx is cancelled.
func (s *SchedulerEngine) Start(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	jobTicker := time.NewTicker(s.schedulerCfg.JobSweepInterval)
	go func() {
		defer wg.Done()
		defer jobTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-jobTicker.C:
				s.placePendingJobs(ctx)
			}
		}
	}()

	wg.Add(1)
	publishTicker := time.NewTicker(s.schedulerCfg.PublishSweepInterval)
	go func() {
		defer wg.Done()
		defer publishTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-publishTicker.C:
				s.materializeScheduledVideos(ctx)
			}
		}
	}()

	if s.schedulerCfg.ReleaseStaleProcessing {
		wg.Add(1)
		orphanTicker := time.NewTicker(s.schedulerCfg.JobSweepInterval)
		go func() {
			defer wg.Done()
			defer orphanTicker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-orphanTicker.C:
					s.releaseOrphans(ctx)
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		s.logger.Info("Scheduler engine stopped")
	}()
}

// placePendingJobs assigns unowned pending jobs to the best available
// worker. A saturated or empty fleet is not an error; the job just waits
// for the next sweep.
func (s *SchedulerEngine) placePendingJobs(ctx context.Context) {
	pending, err := s.jobRepo.GetPendingJobs(ctx, pendingBatchSize)
	if err != nil {
		s.logger.Error("Failed to get pending jobs", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	placed := 0
	for _, job := range pending {
		var platforms []string
		if job.Platform != "" {
			platforms = []string{job.Platform}
		}

		selection, err := s.selector.SelectBestWorker(ctx, job.ProjectID(), platforms, job.Kind())
		if err != nil {
			if errors.Is(err, errs.NoWorkerAvailable) || errors.Is(err, errs.AllWorkersAtCapacity) {
				continue
			}
			s.logger.Error("Failed to select worker for job", "jobId", job.ID, "error", err)
			continue
		}

		if err := s.jobStore.AssignToWorker(ctx, job.ID, selection.WorkerID); err != nil {
			// Lost the race against a polling worker; the job is owned.
			if errors.Is(err, errs.JobNotPending) {
				continue
			}
			s.logger.Error("Failed to assign job", "jobId", job.ID, "workerId", selection.WorkerID, "error", err)
			continue
		}

		placed++
		s.logger.Info("Job assigned",
			"jobId", job.ID, "workerId", selection.WorkerID, "reason", selection.Reason, "score", selection.Score)
	}

	if placed > 0 {
		s.logger.Info("Placement sweep done", "placed", placed, "pending", len(pending))
	}
}

// materializeScheduledVideos turns videos whose scheduled date falls inside
// the publish window into one upload job per target platform, then moves the
// video to queued so the next sweep skips it.
func (s *SchedulerEngine) materializeScheduledVideos(ctx context.Context) {
	now := time.Now()
	videos, err := s.videoRepo.GetScheduledInWindow(ctx, now, now.Add(s.schedulerCfg.PublishWindow))
	if err != nil {
		s.logger.Error("Failed to get scheduled videos", "error", err)
		return
	}

	for _, video := range videos {
		videoID := video.ID
		created := 0
		for _, platform := range video.Platforms {
			metadata := map[string]interface{}{
				domain.MetaJobType:   string(domain.CapabilityUpload),
				domain.MetaProjectID: video.ProjectID,
			}
			if _, err := s.jobStore.CreateJob(ctx, &videoID, platform, 0, metadata); err != nil {
				s.logger.Error("Failed to create upload job",
					"videoId", videoID, "platform", platform, "error", err)
				continue
			}
			created++
		}

		if created == 0 {
			continue
		}
		if err := s.videoRepo.UpdateVideoStatus(ctx, videoID, domain.VideoStatusQueued, video.PublishStatus); err != nil {
			s.logger.Error("Failed to mark video queued", "videoId", videoID, "error", err)
			continue
		}
		s.logger.Info("Scheduled video queued", "videoId", videoID, "jobs", created)
	}
}

// releaseOrphans returns jobs held by stale workers to the pending pool
func (s *SchedulerEngine) releaseOrphans(ctx context.Context) {
	offline, err := s.registry.OfflineWorkerIDs(ctx)
	if err != nil {
		s.logger.Error("Failed to list offline workers", "error", err)
		return
	}
	if len(offline) == 0 {
		return
	}

	released, err := s.jobStore.ReleaseOrphans(ctx, offline)
	if err != nil {
		s.logger.Error("Failed to release orphaned jobs", "error", err)
		return
	}
	if released > 0 {
		metrics.JobsReleased.Add(float64(released))
		s.logger.Warn("Orphan sweep released jobs", "released", released, "offlineWorkers", len(offline))
	}
}
