package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brokechef/fridgechef/internal/domain"
)

const (
	keyPrefix    = "fridgechef:events:"
	pollInterval = time.Second
)

// RedisHub is a Hub backed by one redis list per key, so the process serving
// /events need not be the one that ran the generation.
type RedisHub struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisHub(client *redis.Client, ttl time.Duration) *RedisHub {
	return &RedisHub{client: client, ttl: ttl}
}

func (h *RedisHub) Publish(ctx context.Context, key string, payload domain.EventPayload) error {
	item, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	k := keyPrefix + key
	// Only the latest result matters, so the list is replaced rather than
	// appended to.
	_, err = h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.RPush(ctx, k, item)
		pipe.Expire(ctx, k, h.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (h *RedisHub) Next(ctx context.Context, key string) (domain.EventPayload, error) {
	k := keyPrefix + key
	for {
		if err := ctx.Err(); err != nil {
			return domain.EventPayload{}, err
		}
		data, err := h.client.BLPop(ctx, pollInterval, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return domain.EventPayload{}, ctx.Err()
			}
			return domain.EventPayload{}, fmt.Errorf("failed to read event: %w", err)
		}
		if len(data) < 2 {
			continue
		}
		var payload domain.EventPayload
		if err := json.Unmarshal([]byte(data[1]), &payload); err != nil {
			return domain.EventPayload{}, fmt.Errorf("failed to decode event: %w", err)
		}
		return payload, nil
	}
}

func (h *RedisHub) Reset(ctx context.Context, key string) error {
	if err := h.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset events: %w", err)
	}
	return nil
}
