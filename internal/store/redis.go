package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/go-redis/redis/v8"
)

const (
	redisKeyPrefix   = "reelforge:job:"
	redisJobTTL      = 7 * 24 * time.Hour
	redisMaxAttempts = 5
)

// Redis stores each job as a JSON blob with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ JobStore = (*Redis)(nil)

func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return newRedis(ctx, redis.NewClient(opts))
}

func newRedis(ctx context.Context, client *redis.Client) (*Redis, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{client: client, ttl: redisJobTTL}, nil
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (r *Redis) Create(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	ok, err := r.client.SetNX(ctx, redisKey(job.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	if !ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (*models.Job, error) {
	return r.get(ctx, r.client, id)
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Redis) get(ctx context.Context, c redisGetter, id string) (*models.Job, error) {
	data, err := c.Get(ctx, redisKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Update uses WATCH/MULTI and retries when another writer wins the race.
func (r *Redis) Update(ctx context.Context, id string, fn func(*models.Job) error) (*models.Job, error) {
	key := redisKey(id)
	var updated *models.Job

	txf := func(tx *redis.Tx) error {
		job, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(job); err != nil {
			return err
		}
		touch(job)

		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		if err == nil {
			updated = job
		}
		return err
	}

	for attempt := 0; attempt < redisMaxAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("job %s update kept conflicting after %d attempts", id, redisMaxAttempts)
}

func (r *Redis) Close() error {
	return r.client.Close()
}
