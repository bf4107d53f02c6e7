package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	connKeyPrefix = "presence:conn:" // conn id -> user id, with TTL
	userKeyPrefix = "presence:user:" // user id -> set of conn ids, with TTL
)

// Redis is the shared Store used when more than one hub instance runs. Keys
// expire server-side, so crashed instances cannot pin a user online.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Connect(ctx context.Context, userID, connID string) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, connKeyPrefix+connID, userID, r.ttl)
	pipe.SAdd(ctx, userKeyPrefix+userID, connID)
	pipe.Expire(ctx, userKeyPrefix+userID, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence connect %s: %w", connID, err)
	}
	return nil
}

func (r *Redis) Disconnect(ctx context.Context, connID string) (string, bool, error) {
	userID, err := r.client.GetDel(ctx, connKeyPrefix+connID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("presence disconnect %s: %w", connID, err)
	}

	if err := r.client.SRem(ctx, userKeyPrefix+userID, connID).Err(); err != nil {
		return userID, false, fmt.Errorf("presence disconnect %s: %w", connID, err)
	}

	remaining, err := r.client.SCard(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return userID, false, fmt.Errorf("presence disconnect %s: %w", connID, err)
	}
	if remaining == 0 {
		r.client.Del(ctx, userKeyPrefix+userID)
		return userID, true, nil
	}
	return userID, false, nil
}

func (r *Redis) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.SCard(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("presence online %s: %w", userID, err)
	}
	return n > 0, nil
}

func (r *Redis) ConnectionsOf(ctx context.Context, userID string) ([]string, error) {
	conns, err := r.client.SMembers(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("presence connections %s: %w", userID, err)
	}
	return conns, nil
}
