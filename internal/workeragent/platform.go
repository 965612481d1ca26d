package workeragent

import (
	"context"

	"gitlab.com/vidfleet.net/internal/domain"
)

// PlatformAdapter performs the actual platform work for one provider. The
// agent hands it the decrypted credential envelope; implementations must not
// persist or log the secret material.
type PlatformAdapter interface {
	// Publish uploads the local file and returns the platform video ID and
	// public URL
	Publish(ctx context.Context, creds *domain.CredentialEnvelope, localPath string, job *domain.Job) (platformVideoID, publishedURL string, err error)

	// FetchAnalytics returns current metrics for a published video
	FetchAnalytics(ctx context.Context, creds *domain.CredentialEnvelope, job *domain.Job) (map[string]interface{}, error)

	// FetchComments returns recent comments for a published video
	FetchComments(ctx context.Context, creds *domain.CredentialEnvelope, job *domain.Job) ([]domain.CommentRecord, error)
}
