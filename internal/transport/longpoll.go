package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dkim-lab/chess-arena/internal/obslog"
	"github.com/dkim-lab/chess-arena/pkg/wire"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// pollBroker backs the long-polling fallback for networks that block
// persistent connections. Each poll session is a normal hub connection;
// the coordinator cannot tell it apart from a websocket one.
type pollBroker struct {
	hub  *Hub
	ttl  time.Duration
	wait time.Duration

	mu       sync.Mutex
	sessions map[string]*pollSession
}

type pollSession struct {
	out      <-chan *wire.Event
	lastSeen time.Time
}

func newPollBroker(hub *Hub, ttl, wait time.Duration) *pollBroker {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if wait <= 0 {
		wait = 25 * time.Second
	}
	return &pollBroker{hub: hub, ttl: ttl, wait: wait, sessions: make(map[string]*pollSession)}
}

func (b *pollBroker) open() string {
	connID := uuid.NewString()
	out := b.hub.Attach(connID)
	b.mu.Lock()
	b.sessions[connID] = &pollSession{out: out, lastSeen: time.Now()}
	b.mu.Unlock()
	obslog.L().Info("poll_open", zap.String("conn_id", connID))
	return connID
}

func (b *pollBroker) touch(connID string) (*pollSession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, ok := b.sessions[connID]
	if ok {
		sess.lastSeen = time.Now()
	}
	return sess, ok
}

// expireStale disconnects poll sessions that stopped polling. Called by
// the server's janitor loop; the coordinator sees it as a disconnect.
func (b *pollBroker) expireStale(now time.Time, disconnect func(connID string)) {
	b.mu.Lock()
	var dead []string
	for id, sess := range b.sessions {
		if now.Sub(sess.lastSeen) > b.ttl {
			dead = append(dead, id)
			delete(b.sessions, id)
		}
	}
	b.mu.Unlock()
	for _, id := range dead {
		obslog.L().Info("poll_expire", zap.String("conn_id", id))
		disconnect(id)
		b.hub.Detach(id)
	}
}

func (s *Server) handlePollOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	connID := s.poll.open()
	writeJSON(w, map[string]any{"conn_id": connID, "ttl_sec": int(s.poll.ttl / time.Second)})
}

func (s *Server) handlePollSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	connID := strings.TrimSpace(r.URL.Query().Get("conn"))
	if _, ok := s.poll.touch(connID); !ok {
		http.Error(w, "unknown poll session", http.StatusGone)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	ev, derr := wire.Decode(body)
	if derr != nil {
		s.hub.Send(connID, wire.Error(derr.Error()))
	} else {
		s.dispatch(connID, ev)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePollEvents blocks up to the wait window for the first event, then
// drains whatever else is already queued and returns the batch.
func (s *Server) handlePollEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	connID := strings.TrimSpace(r.URL.Query().Get("conn"))
	sess, ok := s.poll.touch(connID)
	if !ok {
		http.Error(w, "unknown poll session", http.StatusGone)
		return
	}

	events := make([]*wire.Event, 0, 4)
	timer := time.NewTimer(s.poll.wait)
	defer timer.Stop()
	select {
	case ev, open := <-sess.out:
		if open {
			events = append(events, ev)
		}
	case <-timer.C:
	case <-r.Context().Done():
		return
	}
drain:
	for {
		select {
		case ev, open := <-sess.out:
			if !open {
				break drain
			}
			events = append(events, ev)
		default:
			break drain
		}
	}
	writeJSON(w, events)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obslog.L().Warn("poll_write_error", zap.Error(err))
	}
}
