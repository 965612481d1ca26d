// package videorepository contains the PostgreSQL video store slice the
// orchestration core needs: scheduled-video lookup, publish status rows and
// the downstream result sinks.
package videorepository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/domain"
)

// VideoRepository implements the VideoRepository and ResultSink interfaces
// with PostgreSQL
type VideoRepository struct {
	db     *sqlx.DB
	logger primary.Logger
}

// NewVideoRepository creates a new PostgreSQL video repository
func NewVideoRepository(db *sqlx.DB, logger primary.Logger) *VideoRepository {
	return &VideoRepository{
		db:     db,
		logger: logger,
	}
}

func scanVideo(row *sql.Row) (*domain.Video, error) {
	var video domain.Video
	var platforms pq.StringArray
	var publishStatusJSON []byte
	var scheduledDate sql.NullTime

	err := row.Scan(
		&video.ID,
		&video.ProjectID,
		&video.Title,
		&video.FilePath,
		&platforms,
		&video.Status,
		&scheduledDate,
		&publishStatusJSON,
		&video.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	video.Platforms = []string(platforms)
	if scheduledDate.Valid {
		video.ScheduledDate = &scheduledDate.Time
	}
	if len(publishStatusJSON) > 0 {
		if err := json.Unmarshal(publishStatusJSON, &video.PublishStatus); err != nil {
			return nil, fmt.Errorf("failed to unmarshal publish status: %w", err)
		}
	}

	return &video, nil
}

const videoColumns = `
	id, project_id, title, file_path, platforms, status, scheduled_date,
	publish_status, updated_at
`

// GetVideo retrieves a video by ID, nil when unknown
func (r *VideoRepository) GetVideo(ctx context.Context, videoID string) (*domain.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`

	video, err := scanVideo(r.db.QueryRowContext(ctx, query, videoID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get video", "videoId", videoID, "error", err)
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	return video, nil
}

// GetScheduledInWindow returns scheduled videos whose scheduled date falls
// inside (from, to]
func (r *VideoRepository) GetScheduledInWindow(ctx context.Context, from, to time.Time) ([]*domain.Video, error) {
	query := `
		SELECT ` + videoColumns + `
		FROM videos
		WHERE status = $1 AND scheduled_date > $2 AND scheduled_date <= $3
		ORDER BY scheduled_date ASC
	`

	rows, err := r.db.QueryContext(ctx, query, domain.VideoStatusScheduled, from, to)
	if err != nil {
		r.logger.Error("Failed to get scheduled videos", "error", err)
		return nil, fmt.Errorf("failed to get scheduled videos: %w", err)
	}
	defer rows.Close()

	videos := make([]*domain.Video, 0)
	for rows.Next() {
		var video domain.Video
		var platforms pq.StringArray
		var publishStatusJSON []byte
		var scheduledDate sql.NullTime

		err := rows.Scan(
			&video.ID,
			&video.ProjectID,
			&video.Title,
			&video.FilePath,
			&platforms,
			&video.Status,
			&scheduledDate,
			&publishStatusJSON,
			&video.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video row: %w", err)
		}

		video.Platforms = []string(platforms)
		if scheduledDate.Valid {
			video.ScheduledDate = &scheduledDate.Time
		}
		if len(publishStatusJSON) > 0 {
			if err := json.Unmarshal(publishStatusJSON, &video.PublishStatus); err != nil {
				return nil, fmt.Errorf("failed to unmarshal publish status: %w", err)
			}
		}

		videos = append(videos, &video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating video rows: %w", err)
	}

	return videos, nil
}

// UpdateVideoStatus sets the aggregate status and publish-status map
func (r *VideoRepository) UpdateVideoStatus(ctx context.Context, videoID string, status domain.VideoStatus, publishStatus map[string]string) error {
	publishStatusJSON, err := json.Marshal(publishStatus)
	if err != nil {
		return fmt.Errorf("failed to marshal publish status: %w", err)
	}

	result, err := r.db.ExecContext(
		ctx,
		"UPDATE videos SET status = $1, publish_status = $2, updated_at = $3 WHERE id = $4",
		status, publishStatusJSON, time.Now(), videoID,
	)
	if err != nil {
		r.logger.Error("Failed to update video status", "videoId", videoID, "error", err)
		return fmt.Errorf("failed to update video status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("video not found: %s", videoID)
	}

	return nil
}

// RecordPublishOutcome upserts one video x platform outcome row and returns
// the full per-platform outcome map for the video
func (r *VideoRepository) RecordPublishOutcome(ctx context.Context, videoID, platform, outcome string) (map[string]string, error) {
	query := `
		INSERT INTO publish_status (video_id, platform, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (video_id, platform) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, videoID, platform, outcome, time.Now()); err != nil {
		r.logger.Error("Failed to record publish outcome", "videoId", videoID, "platform", platform, "error", err)
		return nil, fmt.Errorf("failed to record publish outcome: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT platform, status FROM publish_status WHERE video_id = $1", videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to read publish outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := make(map[string]string)
	for rows.Next() {
		var p, s string
		if err := rows.Scan(&p, &s); err != nil {
			return nil, fmt.Errorf("failed to scan publish outcome row: %w", err)
		}
		outcomes[p] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating publish outcome rows: %w", err)
	}

	return outcomes, nil
}

// SaveAnalyticsSnapshot stores one analytics fetch result
func (r *VideoRepository) SaveAnalyticsSnapshot(ctx context.Context, snapshot *domain.AnalyticsSnapshot) error {
	metricsJSON, err := json.Marshal(snapshot.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal analytics metrics: %w", err)
	}

	query := `
		INSERT INTO analytics_snapshots (video_id, platform, metrics, fetched_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, snapshot.VideoID, snapshot.Platform, metricsJSON, snapshot.FetchedAt); err != nil {
		r.logger.Error("Failed to save analytics snapshot", "videoId", snapshot.VideoID, "error", err)
		return fmt.Errorf("failed to save analytics snapshot: %w", err)
	}

	return nil
}

// SaveComments stores scraped comments for a video
func (r *VideoRepository) SaveComments(ctx context.Context, videoID string, comments []domain.CommentRecord) error {
	if len(comments) == 0 {
		return nil
	}

	query := `
		INSERT INTO video_comments (video_id, platform, author, body, posted_at, extern_id, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (video_id, platform, extern_id) DO UPDATE SET
			body = EXCLUDED.body,
			fetched_at = EXCLUDED.fetched_at
	`

	for _, c := range comments {
		if _, err := r.db.ExecContext(ctx, query, videoID, c.Platform, c.Author, c.Text, c.PostedAt, c.ExternID, c.FetchedAt); err != nil {
			r.logger.Error("Failed to save comment", "videoId", videoID, "platform", c.Platform, "error", err)
			return fmt.Errorf("failed to save comment: %w", err)
		}
	}

	return nil
}

// SaveUploadResult stores the platform-side identity of a published video
func (r *VideoRepository) SaveUploadResult(ctx context.Context, videoID, platform, platformVideoID, publishedURL string) error {
	query := `
		INSERT INTO upload_results (video_id, platform, platform_video_id, published_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (video_id, platform) DO UPDATE SET
			platform_video_id = EXCLUDED.platform_video_id,
			published_url = EXCLUDED.published_url
	`
	if _, err := r.db.ExecContext(ctx, query, videoID, platform, platformVideoID, publishedURL, time.Now()); err != nil {
		r.logger.Error("Failed to save upload result", "videoId", videoID, "platform", platform, "error", err)
		return fmt.Errorf("failed to save upload result: %w", err)
	}

	return nil
}
