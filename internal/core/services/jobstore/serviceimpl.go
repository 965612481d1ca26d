package jobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/core/ports/secondary"
	"gitlab.com/vidfleet.net/internal/core/services/registry"
	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/metrics"
	"gitlab.com/vidfleet.net/internal/static/errs"
)

var _ IJobStoreService = (*JobStoreService)(nil)

// JobStoreService implements the job lifecycle over the job repository, the
// worker registry and the downstream result sinks
type JobStoreService struct {
	jobRepo    secondary.JobRepository
	registry   registry.IRegistryService
	videoRepo  secondary.VideoRepository
	resultSink secondary.ResultSink
	logger     primary.Logger
}

// NewJobStoreService creates a new job store service
func NewJobStoreService(
	jobRepo secondary.JobRepository,
	reg registry.IRegistryService,
	videoRepo secondary.VideoRepository,
	resultSink secondary.ResultSink,
	logger primary.Logger,
) *JobStoreService {
	return &JobStoreService{
		jobRepo:    jobRepo,
		registry:   reg,
		videoRepo:  videoRepo,
		resultSink: resultSink,
		logger:     logger,
	}
}

// CreateJob enqueues a new pending job
func (s *JobStoreService) CreateJob(ctx context.Context, videoID *string, platform string, priority int, metadata map[string]interface{}) (*domain.Job, error) {
	job := domain.NewJob(videoID, platform, priority, metadata)

	s.logger.Info("Enqueueing job", "jobId", job.ID, "platform", platform, "kind", job.Kind(), "priority", priority)

	if err := s.jobRepo.CreateJob(ctx, job); err != nil {
		s.logger.Error("Failed to save job", "jobId", job.ID, "error", err)
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	metrics.JobsCreated.Inc()
	return job, nil
}

// GetJob retrieves a job by ID, nil when unknown
func (s *JobStoreService) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	return s.jobRepo.GetJob(ctx, jobID)
}

// AssignToWorker assigns a specific pending job to a worker and bumps the
// worker's load. The repository transaction is the claim arbiter; the load
// counter follows it and is self-healed by the worker's next heartbeat if
// the process dies in between.
func (s *JobStoreService) AssignToWorker(ctx context.Context, jobID uuid.UUID, workerID string) error {
	if err := s.jobRepo.Assign(ctx, jobID, workerID); err != nil {
		return err
	}

	if _, err := s.registry.IncrementLoad(ctx, workerID); err != nil {
		s.logger.Error("Failed to increment worker load after assignment",
			"jobId", jobID, "workerId", workerID, "error", err)
	}

	metrics.JobsAssigned.Inc()
	return nil
}

// NextForWorker is the poll path described on IJobStoreService
func (s *JobStoreService) NextForWorker(ctx context.Context, workerID string) (*domain.Job, error) {
	worker, err := s.registry.GetWorker(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	if worker == nil {
		return nil, errs.WorkerNotFound
	}

	// An already-assigned job takes precedence: a reconnecting worker
	// resumes its own work before claiming anything new.
	job, err := s.jobRepo.GetAssignedForWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}

	if job == nil {
		if !worker.HasCapacity() {
			return nil, nil
		}
		job, err = s.jobRepo.ClaimAndAssignNext(ctx, worker.Capabilities.Kind, "", workerID)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, nil
		}
		if _, err := s.registry.IncrementLoad(ctx, workerID); err != nil {
			s.logger.Error("Failed to increment worker load after claim",
				"jobId", job.ID, "workerId", workerID, "error", err)
		}
		metrics.JobsAssigned.Inc()
	}

	if err := s.jobRepo.MarkProcessing(ctx, job.ID); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatusProcessing

	s.logger.Info("Job handed to worker", "jobId", job.ID, "workerId", workerID)
	return job, nil
}

// UpdateStatus applies a worker-reported status
func (s *JobStoreService) UpdateStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, errorMessage *string, resultData *domain.JobResultData) (*domain.Job, error) {
	job, err := s.jobRepo.UpdateStatus(ctx, jobID, status, errorMessage)
	if err != nil {
		return nil, err
	}

	if !status.Terminal() {
		return job, nil
	}

	if job.WorkerID != nil {
		if _, err := s.registry.DecrementLoad(ctx, *job.WorkerID); err != nil {
			s.logger.Error("Failed to decrement worker load",
				"jobId", jobID, "workerId", *job.WorkerID, "error", err)
		}
	}

	switch status {
	case domain.JobStatusCompleted:
		metrics.JobsCompleted.Inc()
		if err := s.routeResult(ctx, job, resultData); err != nil {
			s.logger.Error("Failed to route job result", "jobId", jobID, "error", err)
		}
	case domain.JobStatusFailed:
		metrics.JobsFailed.Inc()
		s.logger.Warn("Job failed", "jobId", jobID, "error", deref(errorMessage))
		if job.Kind() == domain.CapabilityUpload && job.VideoID != nil {
			if err := s.recordPublishOutcome(ctx, *job.VideoID, job.Platform, domain.PublishFailed); err != nil {
				s.logger.Error("Failed to record publish failure", "jobId", jobID, "error", err)
			}
		}
	}

	return job, nil
}

// routeResult sends a completed job's payload to its downstream sink based
// on which fields are present
func (s *JobStoreService) routeResult(ctx context.Context, job *domain.Job, data *domain.JobResultData) error {
	if data == nil {
		// Upload jobs still record success so the video aggregate moves.
		if job.Kind() == domain.CapabilityUpload && job.VideoID != nil {
			return s.recordPublishOutcome(ctx, *job.VideoID, job.Platform, successStamp())
		}
		return nil
	}

	switch {
	case data.Analytics != nil:
		snapshot := &domain.AnalyticsSnapshot{
			Platform:  job.Platform,
			Metrics:   data.Analytics,
			FetchedAt: time.Now(),
		}
		if job.VideoID != nil {
			snapshot.VideoID = *job.VideoID
		}
		return s.resultSink.SaveAnalyticsSnapshot(ctx, snapshot)

	case len(data.Comments) > 0:
		if job.VideoID == nil {
			return fmt.Errorf("comments result without a video")
		}
		return s.resultSink.SaveComments(ctx, *job.VideoID, data.Comments)

	default:
		if job.VideoID == nil {
			return nil
		}
		if data.PlatformVideoID != "" {
			if err := s.resultSink.SaveUploadResult(ctx, *job.VideoID, job.Platform, data.PlatformVideoID, data.PublishedURL); err != nil {
				return err
			}
		}
		return s.recordPublishOutcome(ctx, *job.VideoID, job.Platform, successStamp())
	}
}

// recordPublishOutcome writes one platform outcome and recomputes the owning
// video's aggregate status
func (s *JobStoreService) recordPublishOutcome(ctx context.Context, videoID, platform, outcome string) error {
	outcomes, err := s.videoRepo.RecordPublishOutcome(ctx, videoID, platform, outcome)
	if err != nil {
		return err
	}

	video, err := s.videoRepo.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if video == nil {
		return fmt.Errorf("%w: %s", errs.VideoNotFound, videoID)
	}

	aggregate := domain.AggregatePublishStatus(video.Platforms, outcomes)
	if err := s.videoRepo.UpdateVideoStatus(ctx, videoID, aggregate, outcomes); err != nil {
		return err
	}

	s.logger.Info("Video publish status updated", "videoId", videoID, "status", aggregate)
	return nil
}

// ReleaseOrphans returns assigned/processing jobs of offline workers to the
// pending pool
func (s *JobStoreService) ReleaseOrphans(ctx context.Context, offlineWorkerIDs []string) (int, error) {
	jobs, err := s.jobRepo.GetStaleProcessing(ctx, offlineWorkerIDs)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, job := range jobs {
		if err := s.jobRepo.Release(ctx, job.ID); err != nil {
			s.logger.Error("Failed to release orphaned job", "jobId", job.ID, "error", err)
			continue
		}
		if job.WorkerID != nil {
			if _, err := s.registry.DecrementLoad(ctx, *job.WorkerID); err != nil {
				s.logger.Error("Failed to decrement load for orphaned job",
					"jobId", job.ID, "workerId", *job.WorkerID, "error", err)
			}
		}
		released++
		s.logger.Warn("Released orphaned job back to pending", "jobId", job.ID)
	}

	return released, nil
}

func successStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
