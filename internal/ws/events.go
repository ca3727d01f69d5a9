package ws

import "encoding/json"

// Wire envelope for both directions: {"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound events
const (
	EventJoinRoom = "join-room"
	EventMapMove  = "map-move"
)

// Outbound events
const (
	EventRoleAssigned        = "role-assigned"
	EventError               = "error"
	EventFollowerJoined      = "follower-joined"
	EventTrackerConnected    = "tracker-connected"
	EventRoomUpdate          = "room-update"
	EventMapUpdate           = "map-update"
	EventTrackerDisconnected = "tracker-disconnected"
)

type joinRoomData struct {
	RoomCode string `json:"roomCode"`
}

// Coordinates are pointers so a frame with absent fields is
// distinguishable from one at 0,0: both are possible on the wire but
// only the latter is a real position.
type mapMoveData struct {
	RoomCode string   `json:"roomCode"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Zoom     *float64 `json:"zoom"`
}

type roleAssignedData struct {
	Role string `json:"role"`
}

type errorData struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type noticeData struct {
	Msg string `json:"msg"`
}

type roomUpdateData struct {
	ParticipantCount int `json:"participantCount"`
	MaxParticipants  int `json:"maxParticipants"`
}

type mapUpdateData struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom float64 `json:"zoom"`
	TS   int64   `json:"ts"`
}

// encode wraps a payload in the wire envelope. Payloads are our own
// structs, so marshal errors cannot happen in practice.
func encode(event string, data any) []byte {
	raw, _ := json.Marshal(data)
	b, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return b
}
