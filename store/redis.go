package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL expires a run's keys after the last write. Zero keeps them.
	TTL time.Duration
}

// RedisStore keeps each run's records in a hash keyed by step, with a
// sorted set indexing step numbers so the latest one is a single lookup.
type RedisStore[S any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to the server in cfg.
func NewRedisStore[S any](ctx context.Context, cfg RedisConfig) (*RedisStore[S], error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "devteam:"
	}
	return &RedisStore[S]{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

func (s *RedisStore[S]) stepsKey(runID string) string { return s.prefix + "run:" + runID + ":steps" }
func (s *RedisStore[S]) indexKey(runID string) string { return s.prefix + "run:" + runID + ":index" }
func (s *RedisStore[S]) checkpointKey(id string) string {
	return s.prefix + "checkpoint:" + id
}

// SaveStep implements Store.
func (s *RedisStore[S]) SaveStep(ctx context.Context, runID string, rec StepRecord[S]) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal step: %w", err)
	}

	field := strconv.Itoa(rec.Step)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.stepsKey(runID), field, data)
		pipe.ZAdd(ctx, s.indexKey(runID), redis.Z{Score: float64(rec.Step), Member: field})
		if s.ttl > 0 {
			pipe.Expire(ctx, s.stepsKey(runID), s.ttl)
			pipe.Expire(ctx, s.indexKey(runID), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest implements Store.
func (s *RedisStore[S]) LoadLatest(ctx context.Context, runID string) (StepRecord[S], error) {
	var rec StepRecord[S]
	fields, err := s.client.ZRevRange(ctx, s.indexKey(runID), 0, 0).Result()
	if err != nil {
		return rec, fmt.Errorf("failed to read step index: %w", err)
	}
	if len(fields) == 0 {
		return rec, ErrNotFound
	}

	data, err := s.client.HGet(ctx, s.stepsKey(runID), fields[0]).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("failed to load step: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to unmarshal step: %w", err)
	}
	return rec, nil
}

// SaveCheckpoint implements Store.
func (s *RedisStore[S]) SaveCheckpoint(ctx context.Context, cp Checkpoint[S]) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, s.checkpointKey(cp.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint implements Store.
func (s *RedisStore[S]) LoadCheckpoint(ctx context.Context, cpID string) (Checkpoint[S], error) {
	var cp Checkpoint[S]
	data, err := s.client.Get(ctx, s.checkpointKey(cpID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cp, ErrNotFound
	}
	if err != nil {
		return cp, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// Ping checks the connection.
func (s *RedisStore[S]) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore[S]) Close() error {
	return s.client.Close()
}
