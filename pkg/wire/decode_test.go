package wire

import "testing"

func TestDecodeValidEvents(t *testing.T) {
	cases := []struct {
		raw  string
		typ  string
		room string
	}{
		{`{"type":"create-room"}`, TypeCreateRoom, ""},
		{`{"type":"heartbeat"}`, TypeHeartbeat, ""},
		{`{"type":"join-room","room_id":"R-ABC123"}`, TypeJoinRoom, "R-ABC123"},
		{`{"type":"request-state","room_id":"R-ABC123"}`, TypeRequestState, "R-ABC123"},
		{`{"type":"move","room_id":"R-ABC123","move":"e2e4"}`, TypeMove, "R-ABC123"},
	}
	for _, tc := range cases {
		ev, err := Decode([]byte(tc.raw))
		if err != nil {
			t.Fatalf("Decode(%s): %v", tc.raw, err)
		}
		if ev.Type != tc.typ || ev.RoomID != tc.room {
			t.Fatalf("Decode(%s) = %+v", tc.raw, ev)
		}
	}
}

func TestDecodeRejectsBadEvents(t *testing.T) {
	cases := []string{
		`not json`,
		`{}`,
		`{"type":"unknown-thing"}`,
		`{"type":"join-room"}`,
		`{"type":"move","room_id":"R-ABC123"}`,
		`{"type":"move","move":"e2e4"}`,
		// server-side tags never come inbound
		`{"type":"state"}`,
		`{"type":"room-closed","room_id":"R-ABC123"}`,
	}
	for _, raw := range cases {
		if _, err := Decode([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}
