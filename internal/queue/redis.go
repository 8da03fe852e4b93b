package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis keeps payloads in a redis list so they survive a restart of the
// display process. RPUSH/LPOP keep FIFO order across concurrent clients.
type Redis struct {
	client redis.UniversalClient
	key    string
}

// NewRedis wraps an existing client; key names the backing list.
func NewRedis(client redis.UniversalClient, key string) *Redis {
	return &Redis{client: client, key: key}
}

// Publish implements Queue.
func (r *Redis) Publish(ctx context.Context, payload json.RawMessage) error {
	if err := r.client.RPush(ctx, r.key, []byte(payload)).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

// Subscribe implements Queue.
func (r *Redis) Subscribe(ctx context.Context) (json.RawMessage, bool, error) {
	raw, err := r.client.LPop(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis lpop: %w", err)
	}
	return json.RawMessage(raw), true, nil
}

// Len implements Queue.
func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen: %w", err)
	}
	return int(n), nil
}

// Ping checks that the backing redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
