package session

import (
	"errors"
	"time"

	"github.com/dkim-lab/chess-arena/internal/obslog"
	"github.com/dkim-lab/chess-arena/internal/room"
	"github.com/dkim-lab/chess-arena/internal/rules"
	"github.com/dkim-lab/chess-arena/pkg/wire"
	"go.uber.org/zap"
)

// Sender delivers one event to one connection. Implementations must not
// block: a slow or dead recipient never stalls a room operation.
type Sender interface {
	Send(connID string, ev *wire.Event)
}

var (
	ErrRoomNotFound = errf("room not found")
	ErrNotYourTurn  = errf("not your turn")
	ErrIllegalMove  = errf("invalid move")
	// Reserved: seat claims are silently downgraded to spectator today.
	ErrRoleUnavailable = errf("role unavailable")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Coordinator is the protocol engine: it validates connect/join/move/
// disconnect events against room state, mutates it, and fans snapshots
// out to every member. Each operation is one atomic step under the
// room's lock.
type Coordinator struct {
	reg    *room.Registry
	engine rules.Engine
	sender Sender
}

func New(reg *room.Registry, engine rules.Engine, sender Sender) *Coordinator {
	return &Coordinator{reg: reg, engine: engine, sender: sender}
}

// CreateRoom allocates a room with the requester seated as white and
// sends the initial snapshot to the creator (the room's only member).
func (c *Coordinator) CreateRoom(conn string) (string, error) {
	r, err := c.reg.Create(conn, c.engine.NewGame())
	if err != nil {
		return "", err
	}
	rerr := c.reg.With(r.ID, func(r *room.Room) error {
		c.sender.Send(conn, wire.RoomCreated(r.ID, wire.RoleWhite, c.snapshot(r)))
		return nil
	})
	if rerr != nil {
		return "", ErrRoomNotFound
	}
	obslog.L().Info("room_create", zap.String("room_id", r.ID), zap.String("conn_id", conn))
	return r.ID, nil
}

// Join seats the connection first-come-first-served: white if open, else
// black, else spectator. A join is also a liveness signal. The post-join
// snapshot goes to every current member.
func (c *Coordinator) Join(conn, roomID string) (wire.Role, error) {
	var role wire.Role
	err := c.reg.With(roomID, func(r *room.Room) error {
		switch {
		case r.White == conn:
			role = wire.RoleWhite
		case r.Black == conn:
			role = wire.RoleBlack
		case r.Holds(conn):
			role = wire.RoleSpectator
		case r.White == "":
			r.White = conn
			role = wire.RoleWhite
		case r.Black == "":
			r.Black = conn
			role = wire.RoleBlack
		default:
			r.Spectators[conn] = struct{}{}
			role = wire.RoleSpectator
		}
		r.Touch(time.Now(), false)
		c.broadcast(r, wire.State(c.snapshot(r)))
		return nil
	})
	if err != nil {
		return "", ErrRoomNotFound
	}
	obslog.L().Info("room_join",
		zap.String("room_id", roomID),
		zap.String("conn_id", conn),
		zap.String("role", string(role)),
	)
	return role, nil
}

// RequestState returns the current snapshot without touching membership.
// Reconnecting clients use it to resynchronize before rejoining.
func (c *Coordinator) RequestState(conn, roomID string) (*wire.Snapshot, error) {
	var snap *wire.Snapshot
	err := c.reg.With(roomID, func(r *room.Room) error {
		snap = c.snapshot(r)
		return nil
	})
	if err != nil {
		return nil, ErrRoomNotFound
	}
	return snap, nil
}

// ApplyMove validates in order: room exists, the caller holds the seat
// whose color is to move, the rules engine accepts the move. On success
// the new snapshot is broadcast to the whole room, plus a game-ended
// event when the position is terminal.
func (c *Coordinator) ApplyMove(conn, roomID, move string) (*wire.Snapshot, error) {
	var snap *wire.Snapshot
	err := c.reg.With(roomID, func(r *room.Room) error {
		var seat rules.Color
		switch conn {
		case r.White:
			seat = rules.White
		case r.Black:
			seat = rules.Black
		default:
			return ErrNotYourTurn
		}
		if c.engine.TurnOf(r.Board) != seat {
			return ErrNotYourTurn
		}
		next, san, err := c.applyMoveSafe(r.Board, move)
		if err != nil {
			return ErrIllegalMove
		}
		r.Board = next
		r.MoveLog = append(r.MoveLog, san)
		r.LastMove = san
		r.Touch(time.Now(), true)

		snap = c.snapshot(r)
		c.broadcast(r, wire.State(snap))
		if snap.Result != wire.ResultNone {
			c.broadcast(r, wire.GameEnded(r.ID, snap.Result))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	obslog.L().Info("room_move",
		zap.String("room_id", roomID),
		zap.String("conn_id", conn),
		zap.String("san", snap.LastMove),
		zap.String("turn", string(snap.Turn)),
		zap.String("result", string(snap.Result)),
	)
	return snap, nil
}

// applyMoveSafe keeps an engine fault on malformed input from taking the
// room down; it surfaces as an illegal move to the caller only.
func (c *Coordinator) applyMoveSafe(st rules.State, move string) (next rules.State, san string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			obslog.L().Error("engine_panic", zap.Any("panic", rec))
			next, san, err = nil, "", ErrIllegalMove
		}
	}()
	return c.engine.Apply(st, move)
}

// Heartbeat refreshes the liveness clock on every room the connection
// belongs to. Purely advisory; game state is untouched.
func (c *Coordinator) Heartbeat(conn string) {
	now := time.Now()
	c.reg.ForEach(func(id string) {
		_ = c.reg.With(id, func(r *room.Room) error {
			if r.Holds(conn) {
				r.Touch(now, false)
			}
			return nil
		})
	})
}

// Disconnect clears the connection out of every room it belongs to. A
// vacated seat is broadcast as player-left with the current snapshot so
// the remaining members can keep or abandon the match; a room left with
// no seats and no spectators is deleted immediately.
func (c *Coordinator) Disconnect(conn string) {
	c.reg.ForEach(func(id string) {
		var left wire.Role
		err := c.reg.WithDelete(id, func(r *room.Room) bool {
			if !r.Holds(conn) {
				return false
			}
			switch conn {
			case r.White:
				r.White = ""
				left = wire.RoleWhite
			case r.Black:
				r.Black = ""
				left = wire.RoleBlack
			default:
				delete(r.Spectators, conn)
			}
			if r.Empty() {
				return true
			}
			if left != "" {
				c.broadcast(r, wire.PlayerLeft(left, c.snapshot(r)))
			}
			return false
		})
		if err == nil && left != "" {
			obslog.L().Info("room_leave",
				zap.String("room_id", id),
				zap.String("conn_id", conn),
				zap.String("seat", string(left)),
			)
		}
	})
}

// sweepExpired closes every room whose activity and heartbeat clocks are
// both outside the timeout window. Broadcast precedes delete inside one
// critical section so no member is left waiting on a silently vanished
// room. Returns the number of rooms reclaimed.
func (c *Coordinator) sweepExpired(now time.Time, timeout time.Duration) int {
	swept := 0
	c.reg.ForEach(func(id string) {
		stale := false
		err := c.reg.WithDelete(id, func(r *room.Room) bool {
			if now.Sub(r.LastActivityAt) <= timeout || now.Sub(r.LastHeartbeatAt) <= timeout {
				return false
			}
			stale = true
			c.broadcast(r, wire.RoomClosed(r.ID, "inactivity"))
			return true
		})
		if err == nil && stale {
			swept++
			obslog.L().Info("room_sweep", zap.String("room_id", id), zap.String("reason", "inactivity"))
		}
	})
	return swept
}

func (c *Coordinator) snapshot(r *room.Room) *wire.Snapshot {
	return &wire.Snapshot{
		RoomID:   r.ID,
		FEN:      c.engine.Encode(r.Board),
		White:    r.White != "",
		Black:    r.Black != "",
		MoveLog:  append([]string(nil), r.MoveLog...),
		Turn:     wire.Role(c.engine.TurnOf(r.Board)),
		Result:   wire.Result(c.engine.Outcome(r.Board)),
		LastMove: r.LastMove,
	}
}

func (c *Coordinator) broadcast(r *room.Room, ev *wire.Event) {
	for _, id := range r.Members() {
		c.sender.Send(id, ev)
	}
}
