package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dkim-lab/chess-arena/internal/obslog"
	"github.com/dkim-lab/chess-arena/pkg/wire"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// handleWS owns one websocket connection: a fresh connection id per
// physical socket, a write pump draining the hub queue, and a read loop
// feeding decoded events into the coordinator. Seat continuity across
// reconnects is an application-level rejoin, never restored here.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.originPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	out := s.hub.Attach(connID)
	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		s.co.Disconnect(connID)
		s.hub.Detach(connID)
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	go func() {
		for ev := range out {
			if werr := wsjson.Write(ctx, conn, ev); werr != nil {
				cancel()
				return
			}
		}
	}()

	obslog.L().Info("ws_connect", zap.String("conn_id", connID), zap.String("remote", r.RemoteAddr))
	for {
		var raw json.RawMessage
		if rerr := wsjson.Read(ctx, conn, &raw); rerr != nil {
			obslog.L().Info("ws_disconnect", zap.String("conn_id", connID))
			return
		}
		ev, derr := wire.Decode(raw)
		if derr != nil {
			s.hub.Send(connID, wire.Error(derr.Error()))
			continue
		}
		s.dispatch(connID, ev)
	}
}
