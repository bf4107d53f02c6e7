package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const checkpointKey = "reconciler:checkpoint"

// RedisCheckpoint persists the reconciler boundary as unix milliseconds.
// The boundary is exclusive: ListSince returns strictly-later messages, and
// the reconciler only saves after its records are durably created, so a
// restart re-reads at most one already-processed batch.
type RedisCheckpoint struct {
	client *redis.Client
}

func NewRedisCheckpoint(client *redis.Client) *RedisCheckpoint {
	return &RedisCheckpoint{client: client}
}

func (c *RedisCheckpoint) Load(ctx context.Context) (time.Time, error) {
	v, err := c.client.Get(ctx, checkpointKey).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load checkpoint: %w", err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("load checkpoint: bad value %q: %w", v, err)
	}
	return time.UnixMilli(ms), nil
}

func (c *RedisCheckpoint) Save(ctx context.Context, t time.Time) error {
	if err := c.client.Set(ctx, checkpointKey, strconv.FormatInt(t.UnixMilli(), 10), 0).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
