package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkim-lab/chess-arena/internal/config"
	"github.com/dkim-lab/chess-arena/internal/obslog"
	"github.com/dkim-lab/chess-arena/internal/session"
	"github.com/dkim-lab/chess-arena/pkg/wire"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Server exposes the coordinator over two transports: a websocket duplex
// endpoint and a long-polling fallback.
type Server struct {
	co             *session.Coordinator
	hub            *Hub
	poll           *pollBroker
	httpSrv        *http.Server
	originPatterns []string
	janitorStop    context.CancelFunc
}

func NewServer(cfg *config.Config, co *session.Coordinator, hub *Hub) *Server {
	s := &Server{
		co:             co,
		hub:            hub,
		poll:           newPollBroker(hub, cfg.PollSessionTTL, cfg.PollWait),
		originPatterns: cfg.OriginPatterns,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/poll/open", s.handlePollOpen)
	mux.HandleFunc("/poll/send", s.handlePollSend)
	mux.HandleFunc("/poll/events", s.handlePollEvents)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table for in-process serving in tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	jctx, cancel := context.WithCancel(context.Background())
	s.janitorStop = cancel
	go s.janitor(jctx)

	obslog.L().Info("server_listen", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// janitor expires long-poll sessions that stopped polling.
func (s *Server) janitor(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.poll.expireStale(now, s.co.Disconnect)
		}
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.janitorStop != nil {
		s.janitorStop()
	}
	var errs error
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// dispatch routes one decoded client event into the coordinator. Failures
// go back to the originating connection only; broadcasts are the
// coordinator's job.
func (s *Server) dispatch(connID string, ev *wire.Event) {
	switch ev.Type {
	case wire.TypeCreateRoom:
		if _, err := s.co.CreateRoom(connID); err != nil {
			s.hub.Send(connID, wire.Error(errorMessage(err)))
		}
	case wire.TypeJoinRoom:
		role, err := s.co.Join(connID, ev.RoomID)
		if err != nil {
			s.hub.Send(connID, wire.Error(errorMessage(err)))
			return
		}
		if role == wire.RoleSpectator {
			s.hub.Send(connID, wire.SpectatorMode())
		} else {
			s.hub.Send(connID, wire.ColorAssigned(role))
		}
	case wire.TypeRequestState:
		snap, err := s.co.RequestState(connID, ev.RoomID)
		if err != nil {
			s.hub.Send(connID, wire.Error(errorMessage(err)))
			return
		}
		s.hub.Send(connID, wire.State(snap))
	case wire.TypeMove:
		if _, err := s.co.ApplyMove(connID, ev.RoomID, ev.Move); err != nil {
			s.hub.Send(connID, wire.Error(errorMessage(err)))
		}
	case wire.TypeHeartbeat:
		s.co.Heartbeat(connID)
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, session.ErrNotYourTurn):
		return "Not your turn"
	case errors.Is(err, session.ErrIllegalMove):
		return "Invalid move"
	default:
		return "Internal error"
	}
}
