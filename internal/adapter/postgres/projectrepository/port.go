package projectrepository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"gitlab.com/vidfleet.net/internal/core/ports/primary"
)

// ProjectRepository reads the project slice the selector needs
type ProjectRepository struct {
	db     *sqlx.DB
	logger primary.Logger
}

func NewProjectRepository(db *sqlx.DB, logger primary.Logger) *ProjectRepository {
	return &ProjectRepository{
		db:     db,
		logger: logger,
	}
}

// GetPreferredWorkerID returns the project's pinned worker, empty when the
// project has no preference or does not exist
func (r *ProjectRepository) GetPreferredWorkerID(ctx context.Context, projectID string) (string, error) {
	if projectID == "" {
		return "", nil
	}

	var preferred sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT preferred_worker_id FROM projects WHERE id = $1", projectID).
		Scan(&preferred)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		r.logger.Error("Failed to get preferred worker", "projectId", projectID, "error", err)
		return "", fmt.Errorf("failed to get preferred worker: %w", err)
	}

	if !preferred.Valid {
		return "", nil
	}
	return preferred.String, nil
}
