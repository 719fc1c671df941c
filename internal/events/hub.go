// Package events delivers generation results from the worker that produced
// them to the event stream of the session that asked for them.
package events

import (
	"context"

	"github.com/brokechef/fridgechef/internal/domain"
)

// Hub routes terminal event payloads by session key. A payload published
// before anyone listens is held until the next call to Next for that key.
type Hub interface {
	Publish(ctx context.Context, key string, payload domain.EventPayload) error
	// Next blocks until a payload for key is available or ctx is done.
	Next(ctx context.Context, key string) (domain.EventPayload, error)
	// Reset drops any payload held for key.
	Reset(ctx context.Context, key string) error
}
