// package jobrepository contains the PostgreSQL implementation of the job store
package jobrepository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/static/errs"
)

const jobColumns = `
	id, video_id, platform, worker_id, status, priority, metadata,
	created_at, started_at, completed_at, error_message
`

// JobRepository implements the JobRepository interface with PostgreSQL
type JobRepository struct {
	db     *sqlx.DB
	logger primary.Logger
}

// NewJobRepository creates a new PostgreSQL job repository
func NewJobRepository(db *sqlx.DB, logger primary.Logger) *JobRepository {
	return &JobRepository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var metadataJSON []byte
	var videoID, workerID, errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&videoID,
		&job.Platform,
		&workerID,
		&job.Status,
		&job.Priority,
		&metadataJSON,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if videoID.Valid {
		job.VideoID = &videoID.String
	}
	if workerID.Valid {
		job.WorkerID = &workerID.String
	}
	if errorMessage.Valid {
		job.ErrorMessage = &errorMessage.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job metadata: %w", err)
		}
	}

	return &job, nil
}

// CreateJob persists a new pending job
func (r *JobRepository) CreateJob(ctx context.Context, job *domain.Job) error {
	metadataJSON, err := json.Marshal(job.Metadata)
	if err != nil {
		r.logger.Error("Failed to marshal job metadata", "error", err)
		return fmt.Errorf("failed to marshal job metadata: %w", err)
	}

	query := `
		INSERT INTO jobs (
			id, video_id, platform, worker_id, status, priority, metadata,
			created_at, started_at, completed_at, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.VideoID,
		job.Platform,
		job.WorkerID,
		job.Status,
		job.Priority,
		metadataJSON,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.ErrorMessage,
	)
	if err != nil {
		r.logger.Error("Failed to save job", "jobId", job.ID, "error", err)
		return fmt.Errorf("failed to save job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by ID, nil when unknown
func (r *JobRepository) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get job", "jobId", jobID, "error", err)
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// GetPendingJobs retrieves unassigned pending jobs, highest priority first,
// oldest first within a priority
func (r *JobRepository) GetPendingJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND worker_id IS NULL
		ORDER BY priority DESC, created_at ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, domain.JobStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to get pending jobs", "error", err)
		return nil, fmt.Errorf("failed to get pending jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			r.logger.Error("Failed to scan job row", "error", err)
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return jobs, nil
}

// ClaimAndAssignNext claims the best eligible pending job for the capability
// kind and assigns it to workerID in one transaction. SKIP LOCKED keeps
// concurrent claimants from ever receiving the same row.
func (r *JobRepository) ClaimAndAssignNext(ctx context.Context, kind domain.CapabilityKind, platform string, workerID string) (*domain.Job, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		r.logger.Error("Failed to begin transaction", "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if the transaction is committed

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1
		  AND worker_id IS NULL
		  AND COALESCE(metadata->>'job_type', 'upload') = $2
		  AND ($3 = '' OR platform = $3)
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	job, err := scanJob(tx.QueryRowContext(ctx, query, domain.JobStatusPending, string(kind), platform))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to claim pending job", "error", err)
		return nil, fmt.Errorf("failed to claim pending job: %w", err)
	}

	now := time.Now()
	updateQuery := `
		UPDATE jobs
		SET status = $1, worker_id = $2, started_at = $3
		WHERE id = $4
	`
	if _, err := tx.ExecContext(ctx, updateQuery, domain.JobStatusAssigned, workerID, now, job.ID); err != nil {
		r.logger.Error("Failed to assign claimed job", "jobId", job.ID, "workerId", workerID, "error", err)
		return nil, fmt.Errorf("failed to assign claimed job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", "error", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	job.Status = domain.JobStatusAssigned
	job.WorkerID = &workerID
	job.StartedAt = &now
	return job, nil
}

// Assign marks a specific pending job as assigned to workerID. Fails loudly
// when the job was already taken by someone else.
func (r *JobRepository) Assign(ctx context.Context, jobID uuid.UUID, workerID string) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		r.logger.Error("Failed to begin transaction", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if the transaction is committed

	var status string
	var currentWorker sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT status, worker_id FROM jobs WHERE id = $1 FOR UPDATE", jobID).
		Scan(&status, &currentWorker)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.JobNotFound
		}
		r.logger.Error("Failed to check job status", "jobId", jobID, "error", err)
		return fmt.Errorf("failed to check job status: %w", err)
	}

	if status != string(domain.JobStatusPending) || currentWorker.Valid {
		return fmt.Errorf("%w: job %s is %s", errs.JobNotPending, jobID, status)
	}

	now := time.Now()
	updateQuery := `
		UPDATE jobs
		SET status = $1, worker_id = $2, started_at = $3
		WHERE id = $4
	`
	if _, err := tx.ExecContext(ctx, updateQuery, domain.JobStatusAssigned, workerID, now, jobID); err != nil {
		r.logger.Error("Failed to assign job to worker", "jobId", jobID, "workerId", workerID, "error", err)
		return fmt.Errorf("failed to assign job to worker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("Job assigned to worker", "jobId", jobID, "workerId", workerID)
	return nil
}

// GetAssignedForWorker returns the worker's highest-priority assigned job
func (r *JobRepository) GetAssignedForWorker(ctx context.Context, workerID string) (*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND worker_id = $2
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
	`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, domain.JobStatusAssigned, workerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get assigned job", "workerId", workerID, "error", err)
		return nil, fmt.Errorf("failed to get assigned job: %w", err)
	}

	return job, nil
}

// MarkProcessing flips an assigned job to processing on hand-off
func (r *JobRepository) MarkProcessing(ctx context.Context, jobID uuid.UUID) error {
	result, err := r.db.ExecContext(
		ctx,
		"UPDATE jobs SET status = $1 WHERE id = $2 AND status = $3",
		domain.JobStatusProcessing, jobID, domain.JobStatusAssigned,
	)
	if err != nil {
		r.logger.Error("Failed to mark job processing", "jobId", jobID, "error", err)
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: job %s is not assigned", errs.InvalidStatus, jobID)
	}

	return nil
}

// UpdateStatus sets a job status and returns the updated job. Terminal
// transitions are only accepted from assigned or processing.
func (r *JobRepository) UpdateStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, errorMessage *string) (*domain.Job, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		r.logger.Error("Failed to begin transaction", "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if the transaction is committed

	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.JobNotFound
		}
		r.logger.Error("Failed to load job for update", "jobId", jobID, "error", err)
		return nil, fmt.Errorf("failed to load job for update: %w", err)
	}

	if job.Status.Terminal() {
		return nil, fmt.Errorf("%w: job %s already %s", errs.InvalidStatus, jobID, job.Status)
	}
	if status.Terminal() && job.Status == domain.JobStatusPending {
		return nil, fmt.Errorf("%w: job %s was never assigned", errs.InvalidStatus, jobID)
	}

	var completedAt *time.Time
	if status.Terminal() {
		now := time.Now()
		completedAt = &now
	}

	updateQuery := `
		UPDATE jobs
		SET status = $1, completed_at = $2, error_message = $3
		WHERE id = $4
	`
	if _, err := tx.ExecContext(ctx, updateQuery, status, completedAt, errorMessage, jobID); err != nil {
		r.logger.Error("Failed to update job status", "jobId", jobID, "error", err)
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", "error", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	job.Status = status
	job.CompletedAt = completedAt
	job.ErrorMessage = errorMessage
	return job, nil
}

// GetStaleProcessing returns processing jobs assigned to any of the given
// offline workers
func (r *JobRepository) GetStaleProcessing(ctx context.Context, offlineWorkerIDs []string) ([]*domain.Job, error) {
	if len(offlineWorkerIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? AND worker_id IN (?)`,
		domain.JobStatusProcessing, offlineWorkerIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build stale processing query: %w", err)
	}
	query = r.db.Rebind(query)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to get stale processing jobs", "error", err)
		return nil, fmt.Errorf("failed to get stale processing jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return jobs, nil
}

// Release returns a job to the pending pool, clearing its worker
func (r *JobRepository) Release(ctx context.Context, jobID uuid.UUID) error {
	result, err := r.db.ExecContext(
		ctx,
		"UPDATE jobs SET status = $1, worker_id = NULL, started_at = NULL WHERE id = $2 AND status IN ($3, $4)",
		domain.JobStatusPending, jobID, domain.JobStatusAssigned, domain.JobStatusProcessing,
	)
	if err != nil {
		r.logger.Error("Failed to release job", "jobId", jobID, "error", err)
		return fmt.Errorf("failed to release job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: job %s is not releasable", errs.InvalidStatus, jobID)
	}

	return nil
}
