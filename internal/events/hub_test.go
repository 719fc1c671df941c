package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokechef/fridgechef/internal/domain"
)

func hubs(t *testing.T) map[string]Hub {
	t.Helper()
	out := map[string]Hub{"memory": NewMemoryHub()}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return out
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Logf("redis at %s unavailable: %v", addr, err)
		return out
	}
	out["redis"] = NewRedisHub(client, time.Minute)
	return out
}

func TestPublishBeforeNext(t *testing.T) {
	for name, hub := range hubs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := uuid.NewString()

			require.NoError(t, hub.Publish(ctx, key, domain.EventPayload{Status: domain.StatusError, Message: "boom"}))

			got, err := hub.Next(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusError, got.Status)
			assert.Equal(t, "boom", got.Message)
		})
	}
}

func TestNextWaitsForPublish(t *testing.T) {
	for name, hub := range hubs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := uuid.NewString()
			payload := domain.EventPayload{
				Status:  domain.StatusSuccess,
				Recipes: []domain.GeneratedRecipe{{Title: "Omelette", Duration: 10}},
			}

			go func() {
				time.Sleep(50 * time.Millisecond)
				_ = hub.Publish(ctx, key, payload)
			}()

			got, err := hub.Next(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, payload.Recipes[0].Title, got.Recipes[0].Title)
		})
	}
}

func TestLatestPayloadWins(t *testing.T) {
	for name, hub := range hubs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := uuid.NewString()

			require.NoError(t, hub.Publish(ctx, key, domain.EventPayload{Status: domain.StatusError, Message: "first"}))
			require.NoError(t, hub.Publish(ctx, key, domain.EventPayload{Status: domain.StatusError, Message: "second"}))

			got, err := hub.Next(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "second", got.Message)
		})
	}
}

func TestKeysAreIsolated(t *testing.T) {
	for name, hub := range hubs(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			require.NoError(t, hub.Publish(context.Background(), uuid.NewString(), domain.EventPayload{Status: domain.StatusError}))

			_, err := hub.Next(ctx, uuid.NewString())
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestResetDropsPending(t *testing.T) {
	for name, hub := range hubs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := uuid.NewString()

			require.NoError(t, hub.Publish(ctx, key, domain.EventPayload{Status: domain.StatusError, Message: "stale"}))
			require.NoError(t, hub.Reset(ctx, key))

			waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			_, err := hub.Next(waitCtx, key)
			assert.ErrorIs(t, err, context.DeadlineExceeded)

			require.NoError(t, hub.Publish(ctx, key, domain.EventPayload{Status: domain.StatusError, Message: "fresh"}))
			got, err := hub.Next(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "fresh", got.Message)
		})
	}
}

func TestResetUnknownKey(t *testing.T) {
	for name, hub := range hubs(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, hub.Reset(context.Background(), uuid.NewString()))
		})
	}
}
