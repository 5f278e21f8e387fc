package transport

import (
	"sync"

	"github.com/dkim-lab/chess-arena/internal/obslog"
	"github.com/dkim-lab/chess-arena/pkg/wire"
	"go.uber.org/zap"
)

// Hub maps live connection ids to their outbound queues. It implements
// session.Sender: delivery is fire-and-forget, a full queue drops the
// event rather than blocking the room operation that produced it.
type Hub struct {
	mu    sync.RWMutex
	buf   int
	conns map[string]chan *wire.Event
}

func NewHub(buf int) *Hub {
	if buf <= 0 {
		buf = 32
	}
	return &Hub{buf: buf, conns: make(map[string]chan *wire.Event)}
}

// Attach registers a connection and returns its outbound queue.
func (h *Hub) Attach(connID string) <-chan *wire.Event {
	ch := make(chan *wire.Event, h.buf)
	h.mu.Lock()
	h.conns[connID] = ch
	n := len(h.conns)
	h.mu.Unlock()
	obslog.L().Debug("conn_attach", zap.String("conn_id", connID), zap.Int("conns", n))
	return ch
}

// Detach unregisters the connection. Idempotent.
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	ch, ok := h.conns[connID]
	delete(h.conns, connID)
	n := len(h.conns)
	h.mu.Unlock()
	if !ok {
		return
	}
	close(ch)
	obslog.L().Debug("conn_detach", zap.String("conn_id", connID), zap.Int("conns", n))
}

// Send queues one event for the connection. Unknown or saturated
// recipients are dropped; the client resynchronizes via request-state.
func (h *Hub) Send(connID string, ev *wire.Event) {
	// hold the read lock through the send: Detach closes the queue under
	// the write lock, so a send can never hit a closed channel
	h.mu.RLock()
	defer h.mu.RUnlock()
	ch, ok := h.conns[connID]
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		obslog.L().Warn("conn_drop_event",
			zap.String("conn_id", connID),
			zap.String("type", ev.Type),
		)
	}
}

// Len reports the number of attached connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
