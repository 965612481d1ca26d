package jobstore

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/vidfleet.net/internal/core/services/registry"
	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/static/errs"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Warn(msg string, args ...interface{})  {}

// fakeJobRepo is an in-memory JobRepository with the same claim semantics as
// the SQL implementation: one claimant wins, everyone else moves on.
type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (f *fakeJobRepo) CreateJob(ctx context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJobRepo) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobRepo) GetPendingJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Job, 0)
	for _, job := range f.jobs {
		if job.Status == domain.JobStatusPending && job.WorkerID == nil {
			copied := *job
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeJobRepo) ClaimAndAssignNext(ctx context.Context, kind domain.CapabilityKind, platform string, workerID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *domain.Job
	for _, job := range f.jobs {
		if job.Status != domain.JobStatusPending || job.WorkerID != nil {
			continue
		}
		if job.Kind() != kind {
			continue
		}
		if platform != "" && job.Platform != platform {
			continue
		}
		if best == nil || job.Priority > best.Priority ||
			(job.Priority == best.Priority && job.CreatedAt.Before(best.CreatedAt)) {
			best = job
		}
	}
	if best == nil {
		return nil, nil
	}
	best.Status = domain.JobStatusAssigned
	best.WorkerID = &workerID
	copied := *best
	return &copied, nil
}

func (f *fakeJobRepo) Assign(ctx context.Context, jobID uuid.UUID, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return errs.JobNotFound
	}
	if job.Status != domain.JobStatusPending || job.WorkerID != nil {
		return errs.JobNotPending
	}
	job.Status = domain.JobStatusAssigned
	job.WorkerID = &workerID
	return nil
}

func (f *fakeJobRepo) GetAssignedForWorker(ctx context.Context, workerID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.Status == domain.JobStatusAssigned && job.WorkerID != nil && *job.WorkerID == workerID {
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeJobRepo) MarkProcessing(ctx context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return errs.JobNotFound
	}
	if job.Status != domain.JobStatusAssigned && job.Status != domain.JobStatusProcessing {
		return errs.InvalidStatus
	}
	job.Status = domain.JobStatusProcessing
	return nil
}

func (f *fakeJobRepo) UpdateStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, errorMessage *string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, errs.JobNotFound
	}
	if job.Status.Terminal() {
		return nil, errs.InvalidStatus
	}
	job.Status = status
	job.ErrorMessage = errorMessage
	copied := *job
	return &copied, nil
}

func (f *fakeJobRepo) GetStaleProcessing(ctx context.Context, offlineWorkerIDs []string) ([]*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	offline := make(map[string]struct{}, len(offlineWorkerIDs))
	for _, id := range offlineWorkerIDs {
		offline[id] = struct{}{}
	}
	out := make([]*domain.Job, 0)
	for _, job := range f.jobs {
		if job.WorkerID == nil || job.Status.Terminal() || job.Status == domain.JobStatusPending {
			continue
		}
		if _, ok := offline[*job.WorkerID]; ok {
			copied := *job
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeJobRepo) Release(ctx context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return errs.JobNotFound
	}
	job.Status = domain.JobStatusPending
	job.WorkerID = nil
	return nil
}

// fakeRegistry tracks load adjustments and serves GetWorker
type fakeRegistry struct {
	mu      sync.Mutex
	workers map[string]*domain.WorkerInfo
}

func newFakeRegistry(workers ...*domain.WorkerInfo) *fakeRegistry {
	f := &fakeRegistry{workers: make(map[string]*domain.WorkerInfo)}
	for _, w := range workers {
		f.workers[w.ID] = w
	}
	return f
}

func (f *fakeRegistry) Register(ctx context.Context, req registry.RegisterRequest) (*domain.WorkerInfo, error) {
	return nil, nil
}
func (f *fakeRegistry) Heartbeat(ctx context.Context, workerID string, load int, cpu, mem float64, metadata map[string]string) (*domain.WorkerInfo, error) {
	return nil, nil
}
func (f *fakeRegistry) ListOnline(ctx context.Context) ([]*domain.WorkerInfo, error) { return nil, nil }
func (f *fakeRegistry) ListAll(ctx context.Context) ([]*domain.WorkerInfo, error)    { return nil, nil }
func (f *fakeRegistry) Unregister(ctx context.Context, workerID string) error        { return nil }
func (f *fakeRegistry) GetWorker(ctx context.Context, workerID string) (*domain.WorkerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	worker, ok := f.workers[workerID]
	if !ok {
		return nil, nil
	}
	copied := *worker
	return &copied, nil
}
func (f *fakeRegistry) IncrementLoad(ctx context.Context, workerID string) (*domain.WorkerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	worker, ok := f.workers[workerID]
	if !ok {
		return nil, errs.WorkerNotFound
	}
	worker.CurrentLoad++
	copied := *worker
	return &copied, nil
}
func (f *fakeRegistry) DecrementLoad(ctx context.Context, workerID string) (*domain.WorkerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	worker, ok := f.workers[workerID]
	if !ok {
		return nil, errs.WorkerNotFound
	}
	if worker.CurrentLoad > 0 {
		worker.CurrentLoad--
	}
	copied := *worker
	return &copied, nil
}
func (f *fakeRegistry) OfflineWorkerIDs(ctx context.Context) ([]string, error) { return nil, nil }

type fakeVideoStore struct {
	mu       sync.Mutex
	videos   map[string]*domain.Video
	outcomes map[string]map[string]string
	statuses map[string]domain.VideoStatus

	analytics []*domain.AnalyticsSnapshot
	comments  map[string][]domain.CommentRecord
	uploads   []string
}

func newFakeVideoStore(videos ...*domain.Video) *fakeVideoStore {
	f := &fakeVideoStore{
		videos:   make(map[string]*domain.Video),
		outcomes: make(map[string]map[string]string),
		statuses: make(map[string]domain.VideoStatus),
		comments: make(map[string][]domain.CommentRecord),
	}
	for _, v := range videos {
		f.videos[v.ID] = v
	}
	return f
}

func (f *fakeVideoStore) GetVideo(ctx context.Context, videoID string) (*domain.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	video, ok := f.videos[videoID]
	if !ok {
		return nil, nil
	}
	copied := *video
	return &copied, nil
}

func (f *fakeVideoStore) GetScheduledInWindow(ctx context.Context, from, to time.Time) ([]*domain.Video, error) {
	return nil, nil
}

func (f *fakeVideoStore) UpdateVideoStatus(ctx context.Context, videoID string, status domain.VideoStatus, publishStatus map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[videoID] = status
	return nil
}

func (f *fakeVideoStore) RecordPublishOutcome(ctx context.Context, videoID, platform, outcome string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcomes[videoID] == nil {
		f.outcomes[videoID] = make(map[string]string)
	}
	f.outcomes[videoID][platform] = outcome
	out := make(map[string]string, len(f.outcomes[videoID]))
	for k, v := range f.outcomes[videoID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeVideoStore) SaveAnalyticsSnapshot(ctx context.Context, snapshot *domain.AnalyticsSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analytics = append(f.analytics, snapshot)
	return nil
}

func (f *fakeVideoStore) SaveComments(ctx context.Context, videoID string, comments []domain.CommentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[videoID] = append(f.comments[videoID], comments...)
	return nil
}

func (f *fakeVideoStore) SaveUploadResult(ctx context.Context, videoID, platform, platformVideoID, publishedURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, videoID+"/"+platform+"/"+platformVideoID)
	return nil
}

func uploadWorker(id string, load, capacity int) *domain.WorkerInfo {
	return &domain.WorkerInfo{
		ID:                 id,
		Capabilities:       domain.Capabilities{Kind: domain.CapabilityUpload},
		MaxConcurrentTasks: capacity,
		CurrentLoad:        load,
		Status:             domain.WorkerStatusOnline,
	}
}

func newTestService(jobs *fakeJobRepo, reg *fakeRegistry, videos *fakeVideoStore) *JobStoreService {
	if videos == nil {
		videos = newFakeVideoStore()
	}
	return NewJobStoreService(jobs, reg, videos, videos, nopLogger{})
}

func TestAssignToWorkerBumpsLoad(t *testing.T) {
	jobs := newFakeJobRepo()
	reg := newFakeRegistry(uploadWorker("w1", 0, 4))
	svc := newTestService(jobs, reg, nil)

	job, err := svc.CreateJob(context.Background(), nil, "youtube", 0, nil)
	require.NoError(t, err)

	require.NoError(t, svc.AssignToWorker(context.Background(), job.ID, "w1"))

	stored, err := jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusAssigned, stored.Status)
	assert.Equal(t, "w1", *stored.WorkerID)

	worker, err := reg.GetWorker(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, worker.CurrentLoad)

	// Second assignment of the same job must fail: it is no longer pending
	err = svc.AssignToWorker(context.Background(), job.ID, "w2")
	assert.ErrorIs(t, err, errs.JobNotPending)
}

func TestNextForWorkerResumesOwnJobFirst(t *testing.T) {
	jobs := newFakeJobRepo()
	reg := newFakeRegistry(uploadWorker("w1", 1, 4))
	svc := newTestService(jobs, reg, nil)

	owned, err := svc.CreateJob(context.Background(), nil, "youtube", 0, nil)
	require.NoError(t, err)
	require.NoError(t, jobs.Assign(context.Background(), owned.ID, "w1"))

	_, err = svc.CreateJob(context.Background(), nil, "youtube", 10, nil)
	require.NoError(t, err)

	job, err := svc.NextForWorker(context.Background(), "w1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, owned.ID, job.ID)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)

	// Resuming an already-assigned job must not bump the load again
	worker, err := reg.GetWorker(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, worker.CurrentLoad)
}

func TestNextForWorkerClaimsByPriorityAndKind(t *testing.T) {
	jobs := newFakeJobRepo()
	reg := newFakeRegistry(uploadWorker("w1", 0, 4))
	svc := newTestService(jobs, reg, nil)

	_, err := svc.CreateJob(context.Background(), nil, "youtube", 1, nil)
	require.NoError(t, err)
	urgent, err := svc.CreateJob(context.Background(), nil, "youtube", 9, nil)
	require.NoError(t, err)
	_, err = svc.CreateJob(context.Background(), nil, "youtube", 20, map[string]interface{}{
		domain.MetaJobType: string(domain.CapabilityAnalytics),
	})
	require.NoError(t, err)

	job, err := svc.NextForWorker(context.Background(), "w1")
	require.NoError(t, err)
	require.NotNil(t, job)
	// The analytics job outranks it but the worker only does uploads
	assert.Equal(t, urgent.ID, job.ID)

	worker, err := reg.GetWorker(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, worker.CurrentLoad)
}

func TestNextForWorkerUnknownWorker(t *testing.T) {
	svc := newTestService(newFakeJobRepo(), newFakeRegistry(), nil)

	_, err := svc.NextForWorker(context.Background(), "ghost")
	assert.ErrorIs(t, err, errs.WorkerNotFound)
}

func TestNextForWorkerAtCapacityGetsNothing(t *testing.T) {
	jobs := newFakeJobRepo()
	reg := newFakeRegistry(uploadWorker("w1", 4, 4))
	svc := newTestService(jobs, reg, nil)

	_, err := svc.CreateJob(context.Background(), nil, "youtube", 0, nil)
	require.NoError(t, err)

	job, err := svc.NextForWorker(context.Background(), "w1")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestConcurrentClaimsNeverShareAJob(t *testing.T) {
	jobs := newFakeJobRepo()

	workers := make([]*domain.WorkerInfo, 0, 8)
	for i := 0; i < 8; i++ {
		workers = append(workers, uploadWorker(string(rune('a'+i)), 0, 100))
	}
	reg := newFakeRegistry(workers...)
	svc := newTestService(jobs, reg, nil)

	const jobCount = 40
	for i := 0; i < jobCount; i++ {
		_, err := svc.CreateJob(context.Background(), nil, "youtube", 0, nil)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	claimed := make(map[uuid.UUID]string)
	var wg sync.WaitGroup
	for _, worker := range workers {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			for {
				job, err := svc.NextForWorker(context.Background(), workerID)
				if !assert.NoError(t, err) {
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				owner, seen := claimed[job.ID]
				claimed[job.ID] = workerID
				mu.Unlock()
				assert.False(t, seen, "job %s claimed by both %s and %s", job.ID, owner, workerID)

				_, err = svc.UpdateStatus(context.Background(), job.ID, domain.JobStatusCompleted, nil, nil)
				if !assert.NoError(t, err) {
					return
				}
			}
		}(worker.ID)
	}
	wg.Wait()

	assert.Len(t, claimed, jobCount)
	for _, worker := range workers {
		w, err := reg.GetWorker(context.Background(), worker.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, w.CurrentLoad)
	}
}

func TestUpdateStatusReleasesLoadAndRecordsOutcome(t *testing.T) {
	jobs := newFakeJobRepo()
	reg := newFakeRegistry(uploadWorker("w1", 0, 4))
	videoID := "vid-1"
	videos := newFakeVideoStore(&domain.Video{
		ID:        videoID,
		Platforms: []string{"youtube", "tiktok"},
		Status:    domain.VideoStatusQueued,
	})
	svc := newTestService(jobs, reg, videos)

	ytJob, err := svc.CreateJob(context.Background(), &videoID, "youtube", 0, nil)
	require.NoError(t, err)
	ttJob, err := svc.CreateJob(context.Background(), &videoID, "tiktok", 0, nil)
	require.NoError(t, err)

	for _, job := range []*domain.Job{ytJob, ttJob} {
		require.NoError(t, svc.AssignToWorker(context.Background(), job.ID, "w1"))
		require.NoError(t, jobs.MarkProcessing(context.Background(), job.ID))
	}

	_, err = svc.UpdateStatus(context.Background(), ytJob.ID, domain.JobStatusCompleted, nil, &domain.JobResultData{
		PlatformVideoID: "yt-123",
		PublishedURL:    "https://youtube.example/yt-123",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStatusPartiallyPublished, videos.statuses[videoID])
	assert.Contains(t, videos.uploads, "vid-1/youtube/yt-123")

	message := "quota exceeded"
	_, err = svc.UpdateStatus(context.Background(), ttJob.ID, domain.JobStatusFailed, &message, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStatusPartiallyPublished, videos.statuses[videoID])
	assert.Equal(t, domain.PublishFailed, videos.outcomes[videoID]["tiktok"])

	worker, err := reg.GetWorker(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 0, worker.CurrentLoad)

	// Terminal states are final
	_, err = svc.UpdateStatus(context.Background(), ytJob.ID, domain.JobStatusFailed, nil, nil)
	assert.ErrorIs(t, err, errs.InvalidStatus)
}

func TestUpdateStatusRoutesAnalyticsAndComments(t *testing.T) {
	jobs := newFakeJobRepo()
	reg := newFakeRegistry(uploadWorker("w1", 0, 4))
	videoID := "vid-1"
	videos := newFakeVideoStore(&domain.Video{ID: videoID, Platforms: []string{"youtube"}})
	svc := newTestService(jobs, reg, videos)

	analyticsJob, err := svc.CreateJob(context.Background(), &videoID, "youtube", 0, map[string]interface{}{
		domain.MetaJobType: string(domain.CapabilityAnalytics),
	})
	require.NoError(t, err)
	require.NoError(t, jobs.Assign(context.Background(), analyticsJob.ID, "w1"))

	_, err = svc.UpdateStatus(context.Background(), analyticsJob.ID, domain.JobStatusCompleted, nil, &domain.JobResultData{
		Analytics: map[string]interface{}{"views": 100},
	})
	require.NoError(t, err)
	require.Len(t, videos.analytics, 1)
	assert.Equal(t, videoID, videos.analytics[0].VideoID)

	commentsJob, err := svc.CreateJob(context.Background(), &videoID, "youtube", 0, map[string]interface{}{
		domain.MetaJobType: string(domain.CapabilityComments),
	})
	require.NoError(t, err)
	require.NoError(t, jobs.Assign(context.Background(), commentsJob.ID, "w1"))

	_, err = svc.UpdateStatus(context.Background(), commentsJob.ID, domain.JobStatusCompleted, nil, &domain.JobResultData{
		Comments: []domain.CommentRecord{{Platform: "youtube", Author: "a", Text: "hi", ExternID: "c1"}},
	})
	require.NoError(t, err)
	assert.Len(t, videos.comments[videoID], 1)

	// Non-upload results never touch the publish status
	assert.Empty(t, videos.outcomes[videoID])
}

func TestReleaseOrphans(t *testing.T) {
	jobs := newFakeJobRepo()
	reg := newFakeRegistry(uploadWorker("dead", 2, 4), uploadWorker("alive", 1, 4))
	svc := newTestService(jobs, reg, nil)

	orphan, err := svc.CreateJob(context.Background(), nil, "youtube", 0, nil)
	require.NoError(t, err)
	require.NoError(t, jobs.Assign(context.Background(), orphan.ID, "dead"))
	require.NoError(t, jobs.MarkProcessing(context.Background(), orphan.ID))

	kept, err := svc.CreateJob(context.Background(), nil, "youtube", 0, nil)
	require.NoError(t, err)
	require.NoError(t, jobs.Assign(context.Background(), kept.ID, "alive"))

	released, err := svc.ReleaseOrphans(context.Background(), []string{"dead"})
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	stored, err := jobs.GetJob(context.Background(), orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, stored.Status)
	assert.Nil(t, stored.WorkerID)

	untouched, err := jobs.GetJob(context.Background(), kept.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusAssigned, untouched.Status)

	worker, err := reg.GetWorker(context.Background(), "dead")
	require.NoError(t, err)
	assert.Equal(t, 1, worker.CurrentLoad)
}
