package notify

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// pqBus is a Bus backed by Postgres LISTEN/NOTIFY via lib/pq's Listener,
// the direct grounding for design note §9's "implementations may use
// LISTEN/NOTIFY". Publish issues pg_notify over a plain *sql.DB
// connection; subscriptions are dispatched out of a single background
// goroutine reading pq.Listener's shared notification channel and
// fanning payloads out to per-Listen subscriber channels.
type pqBus struct {
	db       *sql.DB
	listener *pq.Listener

	mu   sync.Mutex
	subs map[string]map[*pqHandle]struct{}

	quit chan struct{}
	wg   sync.WaitGroup
}

type pqHandle struct {
	channel string
	ch      chan string
	bus     *pqBus
	mu      sync.Mutex
	closed  bool
}

func (h *pqHandle) Channel() string { return h.channel }

// NewPQBus dials a LISTEN/NOTIFY connection against dsn and starts the
// dispatch loop. Close must be called to release the listener
// connection.
func NewPQBus(dsn string, db *sql.DB) (*pqBus, error) {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		// The listener itself retries reconnects internally. The bus
		// has no logger hook, so these events are dropped here; they
		// are not fatal to the bus's contract.
	}

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem)

	b := &pqBus{
		db:       db,
		listener: listener,
		subs:     make(map[string]map[*pqHandle]struct{}),
		quit:     make(chan struct{}),
	}

	b.wg.Add(1)
	go b.dispatchLoop()

	return b, nil
}

func (b *pqBus) dispatchLoop() {
	defer b.wg.Done()

	for {
		select {
		case n, ok := <-b.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnection event; nothing queued, nothing to do.
				continue
			}
			b.fanOut(n.Channel, n.Extra)
		case <-b.quit:
			return
		}
	}
}

func (b *pqBus) fanOut(channel, payload string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for h := range b.subs[channel] {
		select {
		case h.ch <- payload:
		default:
		}
	}
}

func (b *pqBus) Publish(ctx context.Context, channel, payload string) error {
	_, err := b.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, payload)
	return err
}

func (b *pqBus) Listen(ctx context.Context, channel string) (Handle, error) {
	if err := b.listener.Listen(channel); err != nil && err != pq.ErrChannelAlreadyOpen {
		return nil, fmt.Errorf("notify: listen %q: %w", channel, err)
	}

	h := &pqHandle{channel: channel, ch: make(chan string, 8), bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*pqHandle]struct{})
	}
	b.subs[channel][h] = struct{}{}

	return h, nil
}

func (b *pqBus) Wait(ctx context.Context, handle Handle) (string, bool, error) {
	h, ok := handle.(*pqHandle)
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

func (b *pqBus) Unlisten(handle Handle) error {
	h, ok := handle.(*pqHandle)
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
	delete(b.subs[h.channel], h)
	remaining := len(b.subs[h.channel])
	b.mu.Unlock()
	close(h.ch)

	if remaining == 0 {
		return b.listener.Unlisten(h.channel)
	}
	return nil
}

// Close shuts down the dispatch loop and the underlying listener
// connection. Not part of the Bus interface — it is a resource-owner
// concern of whoever constructed the pqBus (cmd/ebicsd).
func (b *pqBus) Close() error {
	close(b.quit)
	b.wg.Wait()
	return b.listener.Close()
}
