package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decode parses a raw envelope and validates it against the closed tag set.
// Only client→server tags are accepted here; the coordinator never receives
// server-originated tags back.
func Decode(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}
	ev.Type = strings.TrimSpace(ev.Type)
	switch ev.Type {
	case TypeCreateRoom, TypeHeartbeat:
		// no payload
	case TypeJoinRoom, TypeRequestState:
		if strings.TrimSpace(ev.RoomID) == "" {
			return nil, fmt.Errorf("%s: room_id required", ev.Type)
		}
	case TypeMove:
		if strings.TrimSpace(ev.RoomID) == "" {
			return nil, fmt.Errorf("move: room_id required")
		}
		if strings.TrimSpace(ev.Move) == "" {
			return nil, fmt.Errorf("move: move required")
		}
	case "":
		return nil, fmt.Errorf("missing event type")
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return &ev, nil
}

// Convenience constructors for server→client events.

func RoomCreated(roomID string, role Role, snap *Snapshot) *Event {
	return &Event{Type: TypeRoomCreated, RoomID: roomID, Role: role, Snapshot: snap}
}

func ColorAssigned(role Role) *Event {
	return &Event{Type: TypeColorAssigned, Role: role}
}

func SpectatorMode() *Event {
	return &Event{Type: TypeSpectatorMode}
}

func State(snap *Snapshot) *Event {
	return &Event{Type: TypeState, RoomID: snap.RoomID, Snapshot: snap}
}

func GameEnded(roomID string, result Result) *Event {
	return &Event{Type: TypeGameEnded, RoomID: roomID, Result: result}
}

func PlayerLeft(role Role, snap *Snapshot) *Event {
	return &Event{Type: TypePlayerLeft, RoomID: snap.RoomID, Role: role, Snapshot: snap}
}

func RoomClosed(roomID, reason string) *Event {
	return &Event{Type: TypeRoomClosed, RoomID: roomID, Reason: reason}
}

func Error(message string) *Event {
	return &Event{Type: TypeError, Message: message}
}
