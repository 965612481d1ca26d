package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusAssigned   JobStatus = "assigned"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Metadata keys carried in the job payload.
const (
	MetaJobType   = "job_type"
	MetaTaskType  = "task_type"
	MetaProjectID = "project_id"
)

// Job represents one unit of platform work tied to at most one worker
type Job struct {
	ID           uuid.UUID              `db:"id"`
	VideoID      *string                `db:"video_id"`
	Platform     string                 `db:"platform"`
	WorkerID     *string                `db:"worker_id"`
	Status       JobStatus              `db:"status"`
	Priority     int                    `db:"priority"`
	Metadata     map[string]interface{} `db:"metadata"`
	CreatedAt    time.Time              `db:"created_at"`
	StartedAt    *time.Time             `db:"started_at"`
	CompletedAt  *time.Time             `db:"completed_at"`
	ErrorMessage *string                `db:"error_message"`
}

// Kind returns the capability kind this job requires. Jobs written before
// typed metadata carry no job_type and are treated as uploads.
func (j *Job) Kind() CapabilityKind {
	if j.Metadata != nil {
		if v, ok := j.Metadata[MetaJobType].(string); ok && v != "" {
			return CapabilityKind(v)
		}
	}
	return CapabilityUpload
}

// ProjectID returns the owning project from the job metadata, if any.
func (j *Job) ProjectID() string {
	if j.Metadata == nil {
		return ""
	}
	switch v := j.Metadata[MetaProjectID].(type) {
	case string:
		return v
	case float64:
		// JSON numbers decode as float64
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}

// NewJob creates a new pending job
func NewJob(videoID *string, platform string, priority int, metadata map[string]interface{}) *Job {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &Job{
		ID:        uuid.New(),
		VideoID:   videoID,
		Platform:  platform,
		Status:    JobStatusPending,
		Priority:  priority,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
}

// JobResultData is the payload a worker reports alongside a terminal status.
// Which fields are present determines the downstream sink it is routed to.
type JobResultData struct {
	PlatformVideoID string                 `json:"platform_video_id,omitempty"`
	PublishedURL    string                 `json:"published_url,omitempty"`
	Analytics       map[string]interface{} `json:"analytics,omitempty"`
	Comments        []CommentRecord        `json:"comments,omitempty"`
	Raw             map[string]interface{} `json:"raw,omitempty"`
}

// CommentRecord is one scraped platform comment.
type CommentRecord struct {
	Platform  string    `json:"platform"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	PostedAt  time.Time `json:"posted_at"`
	ExternID  string    `json:"extern_id"`
	FetchedAt time.Time `json:"fetched_at"`
}
