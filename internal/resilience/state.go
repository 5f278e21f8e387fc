package resilience

import "github.com/dkim-lab/chess-arena/pkg/wire"

// State of the client connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// EventCallback receives every server event in arrival order.
type EventCallback func(ev *wire.Event)

// StateCallback observes connection state transitions. StateFailed is
// terminal: the bounded reconnect budget is exhausted.
type StateCallback func(state State)
