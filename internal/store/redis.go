package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shubh-37/postpilot/internal/models"
)

const (
	sessionKeyPrefix = "session:"
	runKeyPrefix     = "run:"
	defaultTTL       = 24 * time.Hour
)

// RedisStore implements Store on Redis. Optimistic concurrency uses
// WATCH/MULTI/EXEC: saves compare the stored version inside a watched
// transaction and fail with ErrConflict when it advanced.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store with a key TTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) CreateSession(ctx context.Context, s *models.Session) error {
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	s.Version = 1
	return r.create(ctx, sessionKeyPrefix+s.ID, s)
}

func (r *RedisStore) LoadSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	if err := r.load(ctx, sessionKeyPrefix+id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisStore) SaveSession(ctx context.Context, s *models.Session) error {
	// Marshal a copy so a failed transaction leaves the caller's entity at
	// its loaded version, same as the postgres driver.
	now := time.Now()
	err := r.save(ctx, sessionKeyPrefix+s.ID, s.Version, func(v int64) ([]byte, error) {
		c := s.Clone()
		c.Version = v
		c.UpdatedAt = now
		return json.Marshal(c)
	}, func(data []byte) (int64, error) {
		var stored models.Session
		if err := json.Unmarshal(data, &stored); err != nil {
			return 0, err
		}
		return stored.Version, nil
	})
	if err != nil {
		return err
	}
	s.Version++
	s.UpdatedAt = now
	return nil
}

func (r *RedisStore) CreateRun(ctx context.Context, run *models.PipelineRun) error {
	now := time.Now()
	run.CreatedAt = now
	run.UpdatedAt = now
	run.Version = 1
	return r.create(ctx, runKeyPrefix+run.ID, run)
}

func (r *RedisStore) LoadRun(ctx context.Context, id string) (*models.PipelineRun, error) {
	var run models.PipelineRun
	if err := r.load(ctx, runKeyPrefix+id, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *RedisStore) SaveRun(ctx context.Context, run *models.PipelineRun) error {
	now := time.Now()
	err := r.save(ctx, runKeyPrefix+run.ID, run.Version, func(v int64) ([]byte, error) {
		c := run.Clone()
		c.Version = v
		c.UpdatedAt = now
		return json.Marshal(c)
	}, func(data []byte) (int64, error) {
		var stored models.PipelineRun
		if err := json.Unmarshal(data, &stored); err != nil {
			return 0, err
		}
		return stored.Version, nil
	})
	if err != nil {
		return err
	}
	run.Version++
	run.UpdatedAt = now
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) create(ctx context.Context, key string, entity any) error {
	val, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	ok, err := r.client.SetNX(ctx, key, val, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (r *RedisStore) load(ctx context.Context, key string, entity any) error {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}

	if err := json.Unmarshal([]byte(val), entity); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}

	// Refresh TTL on read; a failed refresh is not fatal.
	_ = r.client.Expire(ctx, key, r.ttl).Err()
	return nil
}

func (r *RedisStore) save(ctx context.Context, key string, loadedVersion int64,
	marshal func(newVersion int64) ([]byte, error), storedVersion func([]byte) (int64, error)) error {

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		current, err := storedVersion([]byte(val))
		if err != nil {
			return err
		}
		if current != loadedVersion {
			return ErrConflict
		}

		newVal, err := marshal(loadedVersion + 1)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, r.ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}
