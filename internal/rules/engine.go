package rules

import "errors"

// Color identifies the side to move.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Outcome of a position. Draw covers every non-checkmate terminal
// condition (stalemate, insufficient material, repetition, ...).
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeWhiteWon Outcome = "white"
	OutcomeBlackWon Outcome = "black"
	OutcomeDraw     Outcome = "draw"
)

// State is an opaque game handle produced and interpreted only by an
// Engine. Callers never look inside it; they carry it between calls and
// use Encode for any external representation.
type State any

// ErrIllegalMove is returned when the engine declines a move.
var ErrIllegalMove = errors.New("illegal move")

// Engine is the rules capability the session coordinator depends on.
// Swapping rule sets (chess variants) never touches the coordinator.
type Engine interface {
	// NewGame returns the initial position.
	NewGame() State
	// Apply validates and applies a move, returning the next state and
	// the move's notation. The input state must not be reused on error.
	Apply(st State, move string) (State, string, error)
	// TurnOf reports which side moves next.
	TurnOf(st State) Color
	// Outcome reports whether the state is terminal and for whom.
	Outcome(st State) Outcome
	// Encode renders the state as a serialized position for snapshots.
	Encode(st State) string
}
