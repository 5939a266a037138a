package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/tgmcp/internal/router"
)

const eventWriteTimeout = 5 * time.Second

var _ router.EventSink = (*EventHub)(nil)

// EventHub fans router events out to WebSocket subscribers. A subscriber
// that falls behind loses events instead of slowing the router down.
type EventHub struct {
	mu      sync.Mutex
	subs    map[chan router.Event]struct{}
	buffer  int
	logger  *slog.Logger
	done    chan struct{}
	closed  bool
	dropped atomic.Int64
}

// NewEventHub creates a hub with the given per-subscriber buffer.
func NewEventHub(buffer int, logger *slog.Logger) *EventHub {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{
		subs:   make(map[chan router.Event]struct{}),
		buffer: buffer,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Publish implements router.EventSink. It never blocks.
func (h *EventHub) Publish(e router.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber. The returned func unsubscribes.
func (h *EventHub) Subscribe() (<-chan router.Event, func()) {
	ch := make(chan router.Event, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the current number of subscribers.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many events were discarded for slow subscribers.
func (h *EventHub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every WebSocket subscriber.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
}

// ServeHTTP upgrades to a WebSocket and streams events as JSON text
// messages until the client leaves or the hub closes.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	// Incoming messages are ignored; CloseRead cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	events, unsubscribe := h.Subscribe()
	defer unsubscribe()
	h.logger.Debug("event subscriber connected", "remote_addr", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case e := <-events:
			if err := writeEvent(ctx, conn, e); err != nil {
				h.logger.Debug("event subscriber write failed", "error", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e router.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
