package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/dkim-lab/chess-arena/internal/room"
	"github.com/dkim-lab/chess-arena/internal/rules"
	"github.com/dkim-lab/chess-arena/pkg/wire"
)

// recorder captures every event per connection; safe for concurrent use.
type recorder struct {
	mu     sync.Mutex
	byConn map[string][]*wire.Event
}

func newRecorder() *recorder {
	return &recorder{byConn: make(map[string][]*wire.Event)}
}

func (rec *recorder) Send(connID string, ev *wire.Event) {
	rec.mu.Lock()
	rec.byConn[connID] = append(rec.byConn[connID], ev)
	rec.mu.Unlock()
}

func (rec *recorder) ofType(connID, typ string) []*wire.Event {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var out []*wire.Event
	for _, ev := range rec.byConn[connID] {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (rec *recorder) last(connID string) *wire.Event {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	evs := rec.byConn[connID]
	if len(evs) == 0 {
		return nil
	}
	return evs[len(evs)-1]
}

func newTestCoordinator(t *testing.T) (*Coordinator, *room.Registry, *recorder) {
	t.Helper()
	reg := room.NewRegistry()
	rec := newRecorder()
	return New(reg, rules.NewChessEngine(), rec), reg, rec
}

func TestCreateRoomSendsInitialSnapshot(t *testing.T) {
	co, _, rec := newTestCoordinator(t)
	id, err := co.CreateRoom("a")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	created := rec.ofType("a", wire.TypeRoomCreated)
	if len(created) != 1 {
		t.Fatalf("expected one room-created, got %d", len(created))
	}
	ev := created[0]
	if ev.RoomID != id || ev.Role != wire.RoleWhite {
		t.Fatalf("unexpected room-created: %+v", ev)
	}
	if ev.Snapshot == nil || ev.Snapshot.Turn != wire.RoleWhite || len(ev.Snapshot.MoveLog) != 0 {
		t.Fatalf("unexpected initial snapshot: %+v", ev.Snapshot)
	}
}

func TestCreateJoinMoveScenario(t *testing.T) {
	co, _, rec := newTestCoordinator(t)
	id, err := co.CreateRoom("a")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	role, err := co.Join("b", id)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if role != wire.RoleBlack {
		t.Fatalf("expected black for second joiner, got %v", role)
	}

	snap, err := co.ApplyMove("a", id, "e2e4")
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if len(snap.MoveLog) != 1 || snap.MoveLog[0] != "e4" || snap.Turn != wire.RoleBlack {
		t.Fatalf("unexpected snapshot after e4: %+v", snap)
	}
	for _, conn := range []string{"a", "b"} {
		states := rec.ofType(conn, wire.TypeState)
		if len(states) == 0 {
			t.Fatalf("%s received no state broadcast", conn)
		}
		got := states[len(states)-1].Snapshot
		if got.MoveLog[0] != "e4" || got.Turn != wire.RoleBlack {
			t.Fatalf("%s got stale snapshot: %+v", conn, got)
		}
	}
}

func TestMoveOutOfTurnRejectedWithoutBroadcast(t *testing.T) {
	co, _, rec := newTestCoordinator(t)
	id, _ := co.CreateRoom("a")
	if _, err := co.Join("b", id); err != nil {
		t.Fatalf("Join: %v", err)
	}
	before := len(rec.ofType("a", wire.TypeState))

	if _, err := co.ApplyMove("b", id, "e7e5"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if got := len(rec.ofType("a", wire.TypeState)); got != before {
		t.Fatalf("state broadcast on rejected move: %d -> %d", before, got)
	}
}

func TestThirdJoinerBecomesSpectator(t *testing.T) {
	co, _, rec := newTestCoordinator(t)
	id, _ := co.CreateRoom("a")
	if _, err := co.Join("b", id); err != nil {
		t.Fatalf("Join b: %v", err)
	}
	role, err := co.Join("c", id)
	if err != nil {
		t.Fatalf("Join c: %v", err)
	}
	if role != wire.RoleSpectator {
		t.Fatalf("expected spectator for third joiner, got %v", role)
	}
	if _, err := co.ApplyMove("a", id, "e2e4"); err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if len(rec.ofType("c", wire.TypeState)) == 0 {
		t.Fatalf("spectator excluded from state broadcast")
	}
}

func TestSpectatorMayNeverMove(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	id, _ := co.CreateRoom("a")
	_, _ = co.Join("b", id)
	_, _ = co.Join("c", id)
	if _, err := co.ApplyMove("c", id, "e2e4"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn for spectator, got %v", err)
	}
}

func TestIllegalMoveRejected(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	id, _ := co.CreateRoom("a")
	_, _ = co.Join("b", id)
	if _, err := co.ApplyMove("a", id, "e2e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
}

func TestMoveInUnknownRoom(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	if _, err := co.ApplyMove("a", "R-NOPE", "e2e4"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if _, err := co.Join("a", "R-NOPE"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound on join, got %v", err)
	}
	if _, err := co.RequestState("a", "R-NOPE"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound on request-state, got %v", err)
	}
}

func TestCheckmateBroadcastsGameEnded(t *testing.T) {
	co, _, rec := newTestCoordinator(t)
	id, _ := co.CreateRoom("a")
	_, _ = co.Join("b", id)
	moves := []struct{ conn, mv string }{
		{"a", "f2f3"}, {"b", "e7e5"}, {"a", "g2g4"}, {"b", "d8h4"},
	}
	for _, m := range moves {
		if _, err := co.ApplyMove(m.conn, id, m.mv); err != nil {
			t.Fatalf("ApplyMove %s: %v", m.mv, err)
		}
	}
	for _, conn := range []string{"a", "b"} {
		ended := rec.ofType(conn, wire.TypeGameEnded)
		if len(ended) != 1 || ended[0].Result != wire.ResultBlack {
			t.Fatalf("%s: expected one game-ended(black), got %+v", conn, ended)
		}
	}
}

func TestDisconnectClearsSeatAndNotifies(t *testing.T) {
	co, reg, rec := newTestCoordinator(t)
	id, _ := co.CreateRoom("a")
	_, _ = co.Join("b", id)

	co.Disconnect("a")

	left := rec.ofType("b", wire.TypePlayerLeft)
	if len(left) != 1 {
		t.Fatalf("expected exactly one player-left, got %d", len(left))
	}
	if left[0].Role != wire.RoleWhite || left[0].Snapshot == nil || left[0].Snapshot.White {
		t.Fatalf("unexpected player-left: %+v", left[0])
	}
	// room survives while the other seat remains
	if reg.Len() != 1 {
		t.Fatalf("room deleted while black still seated")
	}
	// vacated seat is claimable again
	role, err := co.Join("c", id)
	if err != nil || role != wire.RoleWhite {
		t.Fatalf("expected rejoin as white, got %v %v", role, err)
	}
}

func TestLastDisconnectDeletesRoom(t *testing.T) {
	co, reg, _ := newTestCoordinator(t)
	id, _ := co.CreateRoom("a")
	_, _ = co.Join("b", id)
	co.Disconnect("a")
	co.Disconnect("b")
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d rooms", reg.Len())
	}
	if _, err := co.Join("c", id); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound after reclaim, got %v", err)
	}
}

func TestRequestStateDoesNotJoin(t *testing.T) {
	co, reg, _ := newTestCoordinator(t)
	id, _ := co.CreateRoom("a")
	snap, err := co.RequestState("x", id)
	if err != nil {
		t.Fatalf("RequestState: %v", err)
	}
	if snap.RoomID != id {
		t.Fatalf("wrong snapshot room: %+v", snap)
	}
	_ = reg.With(id, func(r *room.Room) error {
		if r.Holds("x") {
			t.Fatalf("request-state mutated membership")
		}
		return nil
	})
}

func TestMoveLogReplayReproducesBoard(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	id, _ := co.CreateRoom("a")
	_, _ = co.Join("b", id)
	moves := []struct{ conn, mv string }{
		{"a", "e2e4"}, {"b", "c7c5"}, {"a", "g1f3"}, {"b", "d7d6"}, {"a", "d2d4"},
	}
	var snap *wire.Snapshot
	for _, m := range moves {
		var err error
		if snap, err = co.ApplyMove(m.conn, id, m.mv); err != nil {
			t.Fatalf("ApplyMove %s: %v", m.mv, err)
		}
	}

	e := rules.NewChessEngine()
	st := e.NewGame()
	for _, san := range snap.MoveLog {
		var err error
		if st, _, err = e.Apply(st, san); err != nil {
			t.Fatalf("replay %s: %v", san, err)
		}
	}
	if got := e.Encode(st); got != snap.FEN {
		t.Fatalf("replayed FEN mismatch:\n got %s\nwant %s", got, snap.FEN)
	}
}

// enginePanics reproduces a rules-engine fault on malformed input.
type enginePanics struct {
	rules.Engine
}

func (enginePanics) Apply(rules.State, string) (rules.State, string, error) {
	panic("engine exploded")
}

func TestEnginePanicIsolatedToCaller(t *testing.T) {
	reg := room.NewRegistry()
	rec := newRecorder()
	co := New(reg, enginePanics{Engine: rules.NewChessEngine()}, rec)
	id, err := co.CreateRoom("a")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := co.ApplyMove("a", id, "e2e4"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove from panicking engine, got %v", err)
	}
	// room still usable
	if _, err := co.RequestState("a", id); err != nil {
		t.Fatalf("room corrupted after engine panic: %v", err)
	}
}

func TestConcurrentJoinsSingleSeatAssignment(t *testing.T) {
	co, reg, _ := newTestCoordinator(t)
	id, _ := co.CreateRoom("a")

	const n = 16
	roles := make(chan wire.Role, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			role, err := co.Join(string(rune('b'+i)), id)
			if err != nil {
				t.Errorf("Join: %v", err)
				return
			}
			roles <- role
		}(i)
	}
	wg.Wait()
	close(roles)

	black, spectators := 0, 0
	for role := range roles {
		switch role {
		case wire.RoleBlack:
			black++
		case wire.RoleSpectator:
			spectators++
		default:
			t.Fatalf("unexpected role %v", role)
		}
	}
	if black != 1 || spectators != n-1 {
		t.Fatalf("seat race: black=%d spectators=%d", black, spectators)
	}
	_ = reg.With(id, func(r *room.Room) error {
		if len(r.Spectators) != n-1 {
			t.Fatalf("expected %d spectators, got %d", n-1, len(r.Spectators))
		}
		return nil
	})
}
