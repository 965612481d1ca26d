package workerport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/static/errs"
)

const (
	workerKeyPrefix = "worker:"
	workerIndexKey  = "workers:all"

	// AdjustLoad retries the optimistic transaction this many times before
	// giving up under contention.
	adjustLoadRetries = 16
)

// WorkerRepository implements the WorkerRepository interface with Redis.
// Workers are stored as JSON blobs without expiration: liveness is decided
// lazily from last_heartbeat by the registry service, and records only go
// away on explicit unregister.
type WorkerRepository struct {
	redisClient *redis.Client
	logger      primary.Logger
}

// NewWorkerRepository creates a new Redis worker repository
func NewWorkerRepository(redisClient *redis.Client, logger primary.Logger) *WorkerRepository {
	return &WorkerRepository{
		redisClient: redisClient,
		logger:      logger,
	}
}

func workerKey(workerID string) string {
	return workerKeyPrefix + workerID
}

// SaveWorker upserts worker information
func (r *WorkerRepository) SaveWorker(ctx context.Context, worker *domain.WorkerInfo) error {
	workerJSON, err := json.Marshal(worker)
	if err != nil {
		r.logger.Error("Failed to marshal worker info", "error", err)
		return fmt.Errorf("failed to marshal worker info: %w", err)
	}

	pipe := r.redisClient.TxPipeline()
	pipe.Set(ctx, workerKey(worker.ID), workerJSON, 0)
	pipe.SAdd(ctx, workerIndexKey, worker.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to save worker info", "workerId", worker.ID, "error", err)
		return fmt.Errorf("failed to save worker info: %w", err)
	}

	return nil
}

// GetWorker retrieves worker information by ID, nil when unknown
func (r *WorkerRepository) GetWorker(ctx context.Context, workerID string) (*domain.WorkerInfo, error) {
	workerJSON, err := r.redisClient.Get(ctx, workerKey(workerID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		r.logger.Error("Failed to get worker info", "workerId", workerID, "error", err)
		return nil, fmt.Errorf("failed to get worker info: %w", err)
	}

	var worker domain.WorkerInfo
	if err := json.Unmarshal(workerJSON, &worker); err != nil {
		r.logger.Error("Failed to unmarshal worker info", "workerId", workerID, "error", err)
		return nil, fmt.Errorf("failed to unmarshal worker info: %w", err)
	}

	return &worker, nil
}

// GetAllWorkers retrieves every registered worker
func (r *WorkerRepository) GetAllWorkers(ctx context.Context) ([]*domain.WorkerInfo, error) {
	workerIDs, err := r.redisClient.SMembers(ctx, workerIndexKey).Result()
	if err != nil {
		r.logger.Error("Failed to get worker index", "error", err)
		return nil, fmt.Errorf("failed to get worker index: %w", err)
	}

	workers := make([]*domain.WorkerInfo, 0, len(workerIDs))
	if len(workerIDs) == 0 {
		return workers, nil
	}

	keys := make([]string, 0, len(workerIDs))
	for _, id := range workerIDs {
		keys = append(keys, workerKey(id))
	}

	workerData, err := r.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve worker data: %w", err)
	}

	for i, data := range workerData {
		if data == nil {
			// Index entry without a blob: clean it up and move on.
			r.redisClient.SRem(ctx, workerIndexKey, workerIDs[i])
			continue
		}
		var worker domain.WorkerInfo
		if err := json.Unmarshal([]byte(data.(string)), &worker); err != nil {
			return nil, fmt.Errorf("failed to unmarshal worker data: %w", err)
		}
		workers = append(workers, &worker)
	}

	return workers, nil
}

// DeleteWorker removes a worker permanently
func (r *WorkerRepository) DeleteWorker(ctx context.Context, workerID string) error {
	pipe := r.redisClient.TxPipeline()
	pipe.Del(ctx, workerKey(workerID))
	pipe.SRem(ctx, workerIndexKey, workerID)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to delete worker", "workerId", workerID, "error", err)
		return fmt.Errorf("failed to delete worker: %w", err)
	}
	return nil
}

// AdjustLoad atomically changes a worker's load counter by delta, clamped at
// zero. Uses WATCH so concurrent assignments and releases never lose updates.
func (r *WorkerRepository) AdjustLoad(ctx context.Context, workerID string, delta int) (*domain.WorkerInfo, error) {
	key := workerKey(workerID)
	var updated *domain.WorkerInfo

	txn := func(tx *redis.Tx) error {
		workerJSON, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return errs.WorkerNotFound
			}
			return err
		}

		var worker domain.WorkerInfo
		if err := json.Unmarshal(workerJSON, &worker); err != nil {
			return fmt.Errorf("failed to unmarshal worker info: %w", err)
		}

		worker.CurrentLoad += delta
		if worker.CurrentLoad < 0 {
			worker.CurrentLoad = 0
		}

		newJSON, err := json.Marshal(&worker)
		if err != nil {
			return fmt.Errorf("failed to marshal worker info: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newJSON, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &worker
		return nil
	}

	for i := 0; i < adjustLoadRetries; i++ {
		err := r.redisClient.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		if err == errs.WorkerNotFound {
			return nil, err
		}
		r.logger.Error("Failed to adjust worker load", "workerId", workerID, "error", err)
		return nil, fmt.Errorf("failed to adjust worker load: %w", err)
	}

	return nil, fmt.Errorf("failed to adjust worker load for %s: too much contention", workerID)
}
