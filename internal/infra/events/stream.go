package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"creaturecore/pkg/domain"
)

var _ domain.EventSink = (*StreamHub)(nil)

// DefaultStreamQueue is the per-subscriber buffer when none is given.
const DefaultStreamQueue = 64

const streamWriteTimeout = 5 * time.Second

// StreamHub broadcasts events as JSON text frames to WebSocket subscribers.
// A subscriber whose buffer is full misses the event.
type StreamHub struct {
	mu       sync.Mutex
	subs     map[chan []byte]struct{}
	queue    int
	upgrader websocket.Upgrader
	done     chan struct{}
	closed   bool
}

// NewStreamHub builds a hub with the given per-subscriber queue length.
func NewStreamHub(queue int) *StreamHub {
	if queue <= 0 {
		queue = DefaultStreamQueue
	}
	return &StreamHub{
		subs:  make(map[chan []byte]struct{}),
		queue: queue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
}

// Emit implements domain.EventSink.
func (h *StreamHub) Emit(_ context.Context, event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *StreamHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and refuses new ones.
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
}

func (h *StreamHub) subscribe() (chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan []byte, h.queue)
	h.subs[ch] = struct{}{}
	return ch, true
}

func (h *StreamHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events until the client goes
// away or the hub closes. Client messages are discarded.
func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, ok := h.subscribe()
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		return
	}
	defer h.unsubscribe(ch)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-h.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		case payload := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
