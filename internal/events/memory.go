package events

import (
	"context"
	"sync"

	"github.com/brokechef/fridgechef/internal/domain"
)

// MemoryHub is an in-process Hub. Each key holds at most one pending payload;
// a newer payload replaces an unread one.
type MemoryHub struct {
	mu      sync.Mutex
	pending map[string]chan domain.EventPayload
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{pending: make(map[string]chan domain.EventPayload)}
}

func (h *MemoryHub) slot(key string) chan domain.EventPayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.pending[key]
	if !ok {
		ch = make(chan domain.EventPayload, 1)
		h.pending[key] = ch
	}
	return ch
}

func (h *MemoryHub) Publish(_ context.Context, key string, payload domain.EventPayload) error {
	ch := h.slot(key)
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-ch:
	default:
	}
	ch <- payload
	return nil
}

func (h *MemoryHub) Next(ctx context.Context, key string) (domain.EventPayload, error) {
	select {
	case p := <-h.slot(key):
		return p, nil
	case <-ctx.Done():
		return domain.EventPayload{}, ctx.Err()
	}
}

func (h *MemoryHub) Reset(_ context.Context, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.pending[key]; ok {
		select {
		case <-ch:
		default:
		}
	}
	return nil
}
