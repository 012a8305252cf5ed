package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amai2222/shipment-data-view-sub002/internal/models"

	"github.com/redis/go-redis/v9"
)

var ErrRunNotFound = errors.New("import run not found")

const (
	runKeyPrefix  = "import:run:"
	runLockPrefix = "import:lock:"
	runIndexKey   = "import:runs"
)

// ImportSessionRepository keeps import runs in redis. Runs expire after ttl;
// the index is a sorted set scored by creation time.
type ImportSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewImportSessionRepository(client *redis.Client, ttl time.Duration) *ImportSessionRepository {
	return &ImportSessionRepository{client: client, ttl: ttl}
}

func runKey(id string) string  { return runKeyPrefix + id }
func lockKey(id string) string { return runLockPrefix + id }

func (r *ImportSessionRepository) Save(ctx context.Context, run *models.ImportRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, runKey(run.ID), data, r.ttl)
	pipe.ZAdd(ctx, runIndexKey, redis.Z{Score: float64(run.CreatedAt.Unix()), Member: run.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func (r *ImportSessionRepository) Get(ctx context.Context, id string) (*models.ImportRun, error) {
	data, err := r.client.Get(ctx, runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return decodeRun(data)
}

// List returns the newest runs first. Index entries whose run has expired
// are pruned.
func (r *ImportSessionRepository) List(ctx context.Context, limit int) ([]models.ImportRunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	ids, err := r.client.ZRevRange(ctx, runIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(ids) == 0 {
		return []models.ImportRunSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = runKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}

	out := make([]models.ImportRunSummary, 0, len(ids))
	var expired []interface{}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		run, err := decodeRun([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, run.Summary())
	}
	if len(expired) > 0 {
		r.client.ZRem(ctx, runIndexKey, expired...)
	}
	return out, nil
}

// AcquireApplyLock reports whether the caller is the first to apply id.
// The lock is kept for the lifetime of the run.
func (r *ImportSessionRepository) AcquireApplyLock(ctx context.Context, id string) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKey(id), time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to lock run %s: %w", id, err)
	}
	return ok, nil
}

// ReleaseApplyLock gives the run back when it could not be dispatched.
func (r *ImportSessionRepository) ReleaseApplyLock(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, lockKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to unlock run %s: %w", id, err)
	}
	return nil
}

func decodeRun(data []byte) (*models.ImportRun, error) {
	var run models.ImportRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}
	return &run, nil
}
