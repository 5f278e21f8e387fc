package room

import (
	"sync"
	"time"

	"github.com/dkim-lab/chess-arena/internal/rules"
)

// Room holds the state of one match. All fields are guarded by the room's
// own mutex; callers reach them only through Registry.With, which holds
// the lock for the duration of the callback.
type Room struct {
	ID string

	mu     sync.Mutex
	closed bool

	// seat holders and spectators are connection ids; "" means open seat
	White      string
	Black      string
	Spectators map[string]struct{}

	Board    rules.State
	MoveLog  []string
	LastMove string

	LastActivityAt  time.Time
	LastHeartbeatAt time.Time
}

// Members returns every connection id associated with the room.
func (r *Room) Members() []string {
	out := make([]string, 0, len(r.Spectators)+2)
	if r.White != "" {
		out = append(out, r.White)
	}
	if r.Black != "" {
		out = append(out, r.Black)
	}
	for id := range r.Spectators {
		out = append(out, id)
	}
	return out
}

// Holds reports whether the connection is seated or spectating here.
func (r *Room) Holds(connID string) bool {
	if connID == "" {
		return false
	}
	if r.White == connID || r.Black == connID {
		return true
	}
	_, ok := r.Spectators[connID]
	return ok
}

// Empty reports whether both seats are open and nobody is watching.
func (r *Room) Empty() bool {
	return r.White == "" && r.Black == "" && len(r.Spectators) == 0
}

// Touch records liveness. Moves bump activity; heartbeats only the
// heartbeat clock, so the sweeper judges both independently.
func (r *Room) Touch(now time.Time, activity bool) {
	if activity {
		r.LastActivityAt = now
	}
	r.LastHeartbeatAt = now
}
