package wire

// Event type tags exchanged between client and coordinator. The set is
// closed: anything outside it is rejected at the transport boundary.
const (
	// client → server
	TypeCreateRoom   = "create-room"
	TypeJoinRoom     = "join-room"
	TypeRequestState = "request-state"
	TypeMove         = "move"
	TypeHeartbeat    = "heartbeat"

	// server → client
	TypeRoomCreated   = "room-created"
	TypeColorAssigned = "color-assigned"
	TypeSpectatorMode = "spectator-mode"
	TypeState         = "state"
	TypeGameEnded     = "game-ended"
	TypePlayerLeft    = "player-left"
	TypeRoomClosed    = "room-closed"
	TypeError         = "error"
)

// Role is the seat (or lack of one) assigned on join.
type Role string

const (
	RoleWhite     Role = "white"
	RoleBlack     Role = "black"
	RoleSpectator Role = "spectator"
)

// Result of a finished game. Draw covers every non-checkmate terminal
// condition; the rules engine is the authority on which applies.
type Result string

const (
	ResultNone  Result = ""
	ResultWhite Result = "white"
	ResultBlack Result = "black"
	ResultDraw  Result = "draw"
)

// Snapshot is the authoritative room state broadcast to members. Clients
// never infer state from partial deltas.
type Snapshot struct {
	RoomID   string   `json:"room_id"`
	FEN      string   `json:"fen"`
	White    bool     `json:"white_seated"`
	Black    bool     `json:"black_seated"`
	MoveLog  []string `json:"move_log"`
	Turn     Role     `json:"turn"`
	Result   Result   `json:"result,omitempty"`
	LastMove string   `json:"last_move,omitempty"`
}

// Event is the wire envelope. Exactly the fields relevant to Type are set;
// Decode enforces the per-tag payload shape.
type Event struct {
	Type     string    `json:"type"`
	RoomID   string    `json:"room_id,omitempty"`
	Move     string    `json:"move,omitempty"`
	Role     Role      `json:"role,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Result   Result    `json:"result,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Message  string    `json:"message,omitempty"`
}
