package notify

import (
	"context"
	"sync"
	"time"
)

// memoryBus is an in-process Bus, used by unit tests and by any
// deployment that doesn't want a live Postgres LISTEN/NOTIFY round
// trip for the notification plane.
type memoryBus struct {
	mu   sync.Mutex
	subs map[string]map[*memoryHandle]struct{}
}

// NewMemoryBus constructs an in-process Bus satisfying the same
// publish-never-blocks / wait-blocks-up-to-timeout / unlisten-idempotent
// contract as the Postgres-backed implementation.
func NewMemoryBus() Bus {
	return &memoryBus{subs: make(map[string]map[*memoryHandle]struct{})}
}

type memoryHandle struct {
	channel string
	ch      chan string
	bus     *memoryBus
	mu      sync.Mutex
	closed  bool
}

func (h *memoryHandle) Channel() string { return h.channel }

func (b *memoryBus) Publish(_ context.Context, channel, payload string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for h := range b.subs[channel] {
		select {
		case h.ch <- payload:
		default:
			// Slow subscriber: drop rather than block the publisher.
		}
	}
	return nil
}

func (b *memoryBus) Listen(_ context.Context, channel string) (Handle, error) {
	h := &memoryHandle{channel: channel, ch: make(chan string, 8), bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memoryHandle]struct{})
	}
	b.subs[channel][h] = struct{}{}

	return h, nil
}

func (b *memoryBus) Wait(ctx context.Context, handle Handle) (string, bool, error) {
	h, ok := handle.(*memoryHandle)
	if !ok {
		return "", false, nil
	}

	select {
	case payload := <-h.ch:
		return payload, true, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// WaitTimeout is a convenience wrapper matching spec.md §4.8's
// "block up to waitTimeout" phrasing for callers that don't already
// carry a deadlined context.
func WaitTimeout(ctx context.Context, bus Bus, h Handle, timeout time.Duration) (string, bool, error) {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	payload, ok, err := bus.Wait(wctx, h)
	if err == context.DeadlineExceeded {
		return "", false, nil
	}
	return payload, ok, err
}

func (b *memoryBus) Unlisten(handle Handle) error {
	h, ok := handle.(*memoryHandle)
	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[h.channel], h)
	close(h.ch)

	return nil
}
