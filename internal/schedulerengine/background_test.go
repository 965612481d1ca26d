package schedulerengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/vidfleet.net/internal/config"
	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/static/errs"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Warn(msg string, args ...interface{})  {}

type fakeSelector struct {
	// capacity per worker; selection drains it
	mu       sync.Mutex
	capacity map[string]int
}

func (f *fakeSelector) SelectBestWorker(ctx context.Context, projectID string, requiredPlatforms []string, kind domain.CapabilityKind) (*domain.SelectionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for workerID, left := range f.capacity {
		if left > 0 {
			f.capacity[workerID]--
			return &domain.SelectionResult{WorkerID: workerID, Reason: "lowest_score"}, nil
		}
	}
	if len(f.capacity) == 0 {
		return nil, errs.NoWorkerAvailable
	}
	return nil, errs.AllWorkersAtCapacity
}

type fakeJobStore struct {
	mu       sync.Mutex
	assigned map[uuid.UUID]string
	created  []*domain.Job
	released int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{assigned: make(map[uuid.UUID]string)}
}

func (f *fakeJobStore) CreateJob(ctx context.Context, videoID *string, platform string, priority int, metadata map[string]interface{}) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := domain.NewJob(videoID, platform, priority, metadata)
	f.created = append(f.created, job)
	return job, nil
}

func (f *fakeJobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	return nil, nil
}

func (f *fakeJobStore) AssignToWorker(ctx context.Context, jobID uuid.UUID, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.assigned[jobID]; taken {
		return errs.JobNotPending
	}
	f.assigned[jobID] = workerID
	return nil
}

func (f *fakeJobStore) NextForWorker(ctx context.Context, workerID string) (*domain.Job, error) {
	return nil, nil
}

func (f *fakeJobStore) UpdateStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, errorMessage *string, resultData *domain.JobResultData) (*domain.Job, error) {
	return nil, nil
}

func (f *fakeJobStore) ReleaseOrphans(ctx context.Context, offlineWorkerIDs []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released += len(offlineWorkerIDs)
	return len(offlineWorkerIDs), nil
}

type fakePendingRepo struct {
	pending []*domain.Job
}

func (f *fakePendingRepo) GetPendingJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

// Unused JobRepository methods for the sweep tests
func (f *fakePendingRepo) CreateJob(ctx context.Context, job *domain.Job) error { return nil }
func (f *fakePendingRepo) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	return nil, nil
}
func (f *fakePendingRepo) ClaimAndAssignNext(ctx context.Context, kind domain.CapabilityKind, platform string, workerID string) (*domain.Job, error) {
	return nil, nil
}
func (f *fakePendingRepo) Assign(ctx context.Context, jobID uuid.UUID, workerID string) error {
	return nil
}
func (f *fakePendingRepo) GetAssignedForWorker(ctx context.Context, workerID string) (*domain.Job, error) {
	return nil, nil
}
func (f *fakePendingRepo) MarkProcessing(ctx context.Context, jobID uuid.UUID) error { return nil }
func (f *fakePendingRepo) UpdateStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, errorMessage *string) (*domain.Job, error) {
	return nil, nil
}
func (f *fakePendingRepo) GetStaleProcessing(ctx context.Context, offlineWorkerIDs []string) ([]*domain.Job, error) {
	return nil, nil
}
func (f *fakePendingRepo) Release(ctx context.Context, jobID uuid.UUID) error { return nil }

type fakeVideoRepo struct {
	mu        sync.Mutex
	scheduled []*domain.Video
	statuses  map[string]domain.VideoStatus
}

func (f *fakeVideoRepo) GetVideo(ctx context.Context, videoID string) (*domain.Video, error) {
	return nil, nil
}
func (f *fakeVideoRepo) GetScheduledInWindow(ctx context.Context, from, to time.Time) ([]*domain.Video, error) {
	return f.scheduled, nil
}
func (f *fakeVideoRepo) UpdateVideoStatus(ctx context.Context, videoID string, status domain.VideoStatus, publishStatus map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = make(map[string]domain.VideoStatus)
	}
	f.statuses[videoID] = status
	return nil
}
func (f *fakeVideoRepo) RecordPublishOutcome(ctx context.Context, videoID, platform, outcome string) (map[string]string, error) {
	return nil, nil
}

func testEngine(jobRepo *fakePendingRepo, videoRepo *fakeVideoRepo, jobStore *fakeJobStore, sel *fakeSelector) *SchedulerEngine {
	cfg := &config.SchedulerCfg{
		JobSweepInterval:     time.Second,
		PublishSweepInterval: time.Second,
		PublishWindow:        10 * time.Minute,
		HeartbeatWindow:      2 * time.Minute,
	}
	return NewSchedulerEngine(cfg, jobRepo, videoRepo, jobStore, sel, nil, nopLogger{})
}

func TestPlacePendingJobsStopsAtFleetCapacity(t *testing.T) {
	pending := make([]*domain.Job, 0, 5)
	for i := 0; i < 5; i++ {
		pending = append(pending, domain.NewJob(nil, "youtube", 0, nil))
	}
	jobRepo := &fakePendingRepo{pending: pending}
	jobStore := newFakeJobStore()
	sel := &fakeSelector{capacity: map[string]int{"w1": 2, "w2": 1}}

	engine := testEngine(jobRepo, &fakeVideoRepo{}, jobStore, sel)
	engine.placePendingJobs(context.Background())

	// Three slots in the fleet, so exactly three placements; the rest wait
	// for the next sweep.
	assert.Len(t, jobStore.assigned, 3)
}

func TestPlacePendingJobsNoWorkersIsQuiet(t *testing.T) {
	jobRepo := &fakePendingRepo{pending: []*domain.Job{domain.NewJob(nil, "youtube", 0, nil)}}
	jobStore := newFakeJobStore()
	sel := &fakeSelector{capacity: map[string]int{}}

	engine := testEngine(jobRepo, &fakeVideoRepo{}, jobStore, sel)
	engine.placePendingJobs(context.Background())

	assert.Empty(t, jobStore.assigned)
}

func TestMaterializeScheduledVideos(t *testing.T) {
	videoRepo := &fakeVideoRepo{scheduled: []*domain.Video{
		{
			ID:        "vid-1",
			ProjectID: "proj-1",
			Platforms: []string{"youtube", "tiktok"},
			Status:    domain.VideoStatusScheduled,
		},
	}}
	jobStore := newFakeJobStore()

	engine := testEngine(&fakePendingRepo{}, videoRepo, jobStore, &fakeSelector{})
	engine.materializeScheduledVideos(context.Background())

	require.Len(t, jobStore.created, 2)
	platforms := []string{jobStore.created[0].Platform, jobStore.created[1].Platform}
	assert.ElementsMatch(t, []string{"youtube", "tiktok"}, platforms)
	for _, job := range jobStore.created {
		require.NotNil(t, job.VideoID)
		assert.Equal(t, "vid-1", *job.VideoID)
		assert.Equal(t, domain.CapabilityUpload, job.Kind())
		assert.Equal(t, "proj-1", job.ProjectID())
	}

	// The video moves to queued so the next sweep does not enqueue again
	assert.Equal(t, domain.VideoStatusQueued, videoRepo.statuses["vid-1"])
}
