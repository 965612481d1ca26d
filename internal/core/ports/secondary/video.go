package secondary

import (
	"context"
	"time"

	"gitlab.com/vidfleet.net/internal/domain"
)

type VideoRepository interface {
	// GetVideo retrieves a video by ID, nil when unknown
	GetVideo(ctx context.Context, videoID string) (*domain.Video, error)

	// GetScheduledInWindow returns videos in scheduled state whose
	// scheduled date falls inside (from, to]
	GetScheduledInWindow(ctx context.Context, from, to time.Time) ([]*domain.Video, error)

	// UpdateVideoStatus sets the aggregate status and publish-status map
	UpdateVideoStatus(ctx context.Context, videoID string, status domain.VideoStatus, publishStatus map[string]string) error

	// RecordPublishOutcome upserts one video x platform outcome row and
	// returns the full per-platform outcome map for the video
	RecordPublishOutcome(ctx context.Context, videoID, platform, outcome string) (map[string]string, error)
}

// ResultSink routes worker-reported result payloads to their downstream
// stores. Which fields of the payload are present decides the route.
type ResultSink interface {
	SaveAnalyticsSnapshot(ctx context.Context, snapshot *domain.AnalyticsSnapshot) error
	SaveComments(ctx context.Context, videoID string, comments []domain.CommentRecord) error
	SaveUploadResult(ctx context.Context, videoID, platform, platformVideoID, publishedURL string) error
}

type ProjectRepository interface {
	// GetPreferredWorkerID returns the project's pinned worker, empty when
	// the project has no preference
	GetPreferredWorkerID(ctx context.Context, projectID string) (string, error)
}

type SecretRepository interface {
	// Get returns the stored secret bundle for (service, project), nil when
	// the platform has never been connected for the project
	Get(ctx context.Context, service, projectID string) (domain.SecretBundle, error)

	// Put stores a secret bundle, encrypted at rest
	Put(ctx context.Context, service, projectID string, bundle domain.SecretBundle) error
}
