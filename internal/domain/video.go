package domain

import "time"

// VideoStatus represents the aggregate publishing state of a video
type VideoStatus string

const (
	VideoStatusDraft              VideoStatus = "draft"
	VideoStatusScheduled          VideoStatus = "scheduled"
	VideoStatusQueued             VideoStatus = "queued"
	VideoStatusPublished          VideoStatus = "published"
	VideoStatusPartiallyPublished VideoStatus = "partially-published"
	VideoStatusFailed             VideoStatus = "failed"
)

// PublishFailed marks a per-platform publish failure in a video's publish
// status map. Successful targets store the ISO timestamp of success instead.
const PublishFailed = "failed"

// Video represents the slice of a video record the orchestration core touches
type Video struct {
	ID            string            `db:"id"`
	ProjectID     string            `db:"project_id"`
	Title         string            `db:"title"`
	FilePath      string            `db:"file_path"`
	Platforms     []string          `db:"platforms"`
	Status        VideoStatus       `db:"status"`
	ScheduledDate *time.Time        `db:"scheduled_date"`
	PublishStatus map[string]string `db:"publish_status"`
	UpdatedAt     time.Time         `db:"updated_at"`
}

// PublishStatusRow is one video x platform publish outcome
type PublishStatusRow struct {
	VideoID   string    `db:"video_id"`
	Platform  string    `db:"platform"`
	Status    string    `db:"status"`
	UpdatedAt time.Time `db:"updated_at"`
}

// AggregatePublishStatus folds per-platform outcomes into the overall video
// status: all targets succeeded -> published, some -> partially-published,
// none -> failed. Targets with no outcome yet count as not succeeded but do
// not force the failed state on their own.
func AggregatePublishStatus(targets []string, perPlatform map[string]string) VideoStatus {
	if len(targets) == 0 {
		return VideoStatusFailed
	}
	succeeded := 0
	failed := 0
	for _, platform := range targets {
		outcome, ok := perPlatform[platform]
		if !ok {
			continue
		}
		if outcome == PublishFailed {
			failed++
		} else {
			succeeded++
		}
	}
	switch {
	case succeeded == len(targets):
		return VideoStatusPublished
	case succeeded > 0:
		return VideoStatusPartiallyPublished
	case failed > 0:
		return VideoStatusFailed
	default:
		return VideoStatusQueued
	}
}

// AnalyticsSnapshot is the uniform shape an analytics fetch reports back.
type AnalyticsSnapshot struct {
	VideoID   string                 `json:"video_id"`
	Platform  string                 `json:"platform"`
	Metrics   map[string]interface{} `json:"metrics"`
	FetchedAt time.Time              `json:"fetched_at"`
}
