package room

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkim-lab/chess-arena/internal/rules"
)

// ErrNotFound is returned when a room id is unknown or already reclaimed.
var ErrNotFound = errors.New("room not found")

// Registry is the exclusive owner of the id→Room mapping. It is an
// explicit, constructed-once object (never a package-level singleton) so
// tests can run several independent instances in one process.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Create allocates a fresh room seated with the creator as white.
func (reg *Registry) Create(creatorConn string, board rules.State) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var id string
	for {
		c, err := codeGen()
		if err != nil {
			return nil, err
		}
		if _, taken := reg.rooms[c]; !taken {
			id = c
			break
		}
	}
	now := time.Now()
	r := &Room{
		ID:              id,
		White:           creatorConn,
		Spectators:      make(map[string]struct{}),
		Board:           board,
		MoveLog:         []string{},
		LastActivityAt:  now,
		LastHeartbeatAt: now,
	}
	reg.rooms[id] = r
	return r, nil
}

// With runs fn with the room's exclusive lock held. It is the only way to
// read or mutate a Room; holding a *Room across suspension points would
// race with concurrent disconnects and sweeps.
func (reg *Registry) With(id string, fn func(*Room) error) error {
	reg.mu.RLock()
	r, ok := reg.rooms[id]
	reg.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrNotFound
	}
	return fn(r)
}

// Delete removes the room. Idempotent; the closed flag keeps any caller
// that already resolved the pointer from acting on the dead room.
func (reg *Registry) Delete(id string) {
	reg.mu.Lock()
	r, ok := reg.rooms[id]
	delete(reg.rooms, id)
	reg.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// WithDelete runs fn under both the registry and room locks; a true
// return deletes the room in the same critical section. Disconnect
// fan-out and the sweeper use this so their broadcast-then-delete is one
// atomic step with respect to any in-flight room operation.
func (reg *Registry) WithDelete(id string, fn func(*Room) bool) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[id]
	if !ok {
		return ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrNotFound
	}
	if fn(r) {
		r.closed = true
		delete(reg.rooms, id)
	}
	return nil
}

// ForEach visits a snapshot of current room ids. Deleting the visited
// room from within fn is legal.
func (reg *Registry) ForEach(fn func(id string)) {
	reg.mu.RLock()
	ids := make([]string, 0, len(reg.rooms))
	for id := range reg.rooms {
		ids = append(ids, id)
	}
	reg.mu.RUnlock()
	for _, id := range ids {
		fn(id)
	}
}

// Len reports the number of live rooms.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// codeGen returns `R-` + 6 upper alnum.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return fmt.Sprintf("R-%s", string(b)), nil
}
