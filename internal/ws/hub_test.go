package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemanth-chakravarthy/realtime-geosync/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testHub(t *testing.T) (*Hub, *registry.Registry) {
	t.Helper()
	reg := registry.New(testLogger())
	return NewHub(testLogger(), reg), reg
}

// drain decodes every frame queued on the connection's out channel
func drain(t *testing.T, c *Conn) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case b := <-c.out:
			var env Envelope
			require.NoError(t, json.Unmarshal(b, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func eventNames(envs []Envelope) []string {
	names := make([]string, 0, len(envs))
	for _, e := range envs {
		names = append(names, e.Event)
	}
	return names
}

func decodeData(t *testing.T, env Envelope, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func moveFrame(code string, lat, lng, zoom float64) mapMoveData {
	return mapMoveData{RoomCode: code, Lat: &lat, Lng: &lng, Zoom: &zoom}
}

func TestHandleJoin_RoleAndNotices(t *testing.T) {
	h, reg := testHub(t)
	room := reg.CreateRoom()

	a := NewConn(nil, "conn-a")
	h.handleJoin(a, joinRoomData{RoomCode: room.Code})

	got := drain(t, a)
	require.Equal(t, []string{EventRoleAssigned, EventRoomUpdate}, eventNames(got))

	var role roleAssignedData
	decodeData(t, got[0], &role)
	assert.Equal(t, "tracker", role.Role)

	var ru roomUpdateData
	decodeData(t, got[1], &ru)
	assert.Equal(t, 1, ru.ParticipantCount)
	assert.Equal(t, 3, ru.MaxParticipants)

	// Second joiner: follower role, tracker hears about it
	b := NewConn(nil, "conn-b")
	h.handleJoin(b, joinRoomData{RoomCode: room.Code})

	gotB := drain(t, b)
	require.Equal(t, []string{EventRoleAssigned, EventRoomUpdate}, eventNames(gotB))
	decodeData(t, gotB[0], &role)
	assert.Equal(t, "follower", role.Role)

	gotA := drain(t, a)
	require.Equal(t, []string{EventFollowerJoined, EventRoomUpdate}, eventNames(gotA))
	decodeData(t, gotA[1], &ru)
	assert.Equal(t, 2, ru.ParticipantCount)
}

func TestHandleJoin_LowercaseCode(t *testing.T) {
	h, reg := testHub(t)
	room := reg.CreateRoom()

	a := NewConn(nil, "conn-a")
	h.handleJoin(a, joinRoomData{RoomCode: "  " + strings.ToLower(room.Code) + " "})
	got := drain(t, a)
	require.NotEmpty(t, got)
	assert.Equal(t, EventRoleAssigned, got[0].Event)
}

func TestHandleJoin_NotFound(t *testing.T) {
	h, _ := testHub(t)

	a := NewConn(nil, "conn-a")
	h.handleJoin(a, joinRoomData{RoomCode: "ZZZZZZ"})

	got := drain(t, a)
	require.Len(t, got, 1)
	require.Equal(t, EventError, got[0].Event)

	var e errorData
	decodeData(t, got[0], &e)
	assert.Equal(t, "NOT_FOUND", e.Code)
	assert.NotEmpty(t, e.Msg)
}

func TestHandleJoin_RoomFull(t *testing.T) {
	h, reg := testHub(t)
	room := reg.CreateRoom()

	members := []*Conn{}
	for _, id := range []string{"a", "b", "c"} {
		c := NewConn(nil, id)
		h.handleJoin(c, joinRoomData{RoomCode: room.Code})
		members = append(members, c)
	}

	d := NewConn(nil, "d")
	h.handleJoin(d, joinRoomData{RoomCode: room.Code})

	got := drain(t, d)
	require.Len(t, got, 1)
	require.Equal(t, EventError, got[0].Event)
	var e errorData
	decodeData(t, got[0], &e)
	assert.Equal(t, "ROOM_FULL", e.Code)

	// The rejection never reaches the room
	for _, m := range members {
		drain(t, m)
	}
	for _, m := range members {
		assert.Empty(t, drain(t, m))
	}
}

func TestHandleJoin_DuplicateReemitsRole(t *testing.T) {
	h, reg := testHub(t)
	room := reg.CreateRoom()

	a := NewConn(nil, "conn-a")
	b := NewConn(nil, "conn-b")
	h.handleJoin(a, joinRoomData{RoomCode: room.Code})
	h.handleJoin(b, joinRoomData{RoomCode: room.Code})
	drain(t, a)
	drain(t, b)

	h.handleJoin(a, joinRoomData{RoomCode: room.Code})

	got := drain(t, a)
	require.Equal(t, []string{EventRoleAssigned}, eventNames(got))
	var role roleAssignedData
	decodeData(t, got[0], &role)
	assert.Equal(t, "tracker", role.Role)

	// No notices for a duplicate join
	assert.Empty(t, drain(t, b))
}

func TestHandleMove_RelayAndTruncation(t *testing.T) {
	h, reg := testHub(t)
	room := reg.CreateRoom()

	a := NewConn(nil, "conn-a")
	b := NewConn(nil, "conn-b")
	h.handleJoin(a, joinRoomData{RoomCode: room.Code})
	h.handleJoin(b, joinRoomData{RoomCode: room.Code})
	drain(t, a)
	drain(t, b)

	h.handleMove(a, moveFrame(room.Code, 45.123456789, -122.987654321, 12.34))

	got := drain(t, b)
	require.Equal(t, []string{EventMapUpdate}, eventNames(got))

	var mu mapUpdateData
	decodeData(t, got[0], &mu)
	assert.Equal(t, 45.123457, mu.Lat)
	assert.Equal(t, -122.987654, mu.Lng)
	assert.Equal(t, 12.3, mu.Zoom)
	assert.Greater(t, mu.TS, int64(0))

	// The sender's own view is authoritative; no echo
	assert.Empty(t, drain(t, a))
}

func TestHandleMove_InvalidDropped(t *testing.T) {
	tests := []struct {
		name           string
		lat, lng, zoom float64
	}{
		{"lat out of range", 91, 0, 10},
		{"zoom out of range", 45, -122, 23},
		{"lng out of range", 45, 181, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, reg := testHub(t)
			room := reg.CreateRoom()

			a := NewConn(nil, "conn-a")
			b := NewConn(nil, "conn-b")
			h.handleJoin(a, joinRoomData{RoomCode: room.Code})
			h.handleJoin(b, joinRoomData{RoomCode: room.Code})
			drain(t, a)
			drain(t, b)

			h.handleMove(a, moveFrame(room.Code, tt.lat, tt.lng, tt.zoom))

			// Dropped silently: no broadcast, no error to the sender
			assert.Empty(t, drain(t, b))
			assert.Empty(t, drain(t, a))
		})
	}
}

func TestHandleMove_Throttled(t *testing.T) {
	h, reg := testHub(t)
	room := reg.CreateRoom()

	a := NewConn(nil, "conn-a")
	b := NewConn(nil, "conn-b")
	h.handleJoin(a, joinRoomData{RoomCode: room.Code})
	h.handleJoin(b, joinRoomData{RoomCode: room.Code})
	drain(t, a)
	drain(t, b)

	frame := moveFrame(room.Code, 1, 2, 3)

	h.handleMove(a, frame) // accepted
	h.handleMove(a, frame) // inside the 100ms window, dropped
	assert.Len(t, drain(t, b), 1)

	time.Sleep(150 * time.Millisecond)
	h.handleMove(a, frame) // window has passed
	assert.Len(t, drain(t, b), 1)
}

func TestHandleDisconnect_TrackerLeft(t *testing.T) {
	h, reg := testHub(t)
	room := reg.CreateRoom()

	a := NewConn(nil, "conn-a")
	b := NewConn(nil, "conn-b")
	h.handleJoin(a, joinRoomData{RoomCode: room.Code})
	h.handleJoin(b, joinRoomData{RoomCode: room.Code})
	drain(t, a)
	drain(t, b)

	h.handleDisconnect(a)

	got := drain(t, b)
	require.Equal(t, []string{EventTrackerDisconnected, EventRoomUpdate}, eventNames(got))

	var ru roomUpdateData
	decodeData(t, got[1], &ru)
	assert.Equal(t, 1, ru.ParticipantCount)

	// No promotion: a later joiner is still a follower while B remains
	c := NewConn(nil, "conn-c")
	h.handleJoin(c, joinRoomData{RoomCode: room.Code})
	gotC := drain(t, c)
	require.NotEmpty(t, gotC)
	var role roleAssignedData
	decodeData(t, gotC[0], &role)
	assert.Equal(t, "follower", role.Role)

	st := reg.Validate(room.Code)
	assert.Equal(t, 2, st.CurrentParticipants)
	assert.False(t, st.IsFull)
}

func TestHandleDisconnect_LastMemberDeletesRoom(t *testing.T) {
	h, reg := testHub(t)
	room := reg.CreateRoom()

	a := NewConn(nil, "conn-a")
	h.handleJoin(a, joinRoomData{RoomCode: room.Code})
	drain(t, a)

	h.handleDisconnect(a)

	_, ok := reg.Get(room.Code)
	assert.False(t, ok)
	assert.Nil(t, h.lookup(room.Code))
}

func TestHandleDisconnect_NeverJoined(t *testing.T) {
	h, _ := testHub(t)
	// Must not panic or broadcast anything
	h.handleDisconnect(NewConn(nil, "ghost"))
}

func TestHandleMove_MissingFieldsDropped(t *testing.T) {
	h, reg := testHub(t)
	room := reg.CreateRoom()

	a := NewConn(nil, "conn-a")
	b := NewConn(nil, "conn-b")
	h.handleJoin(a, joinRoomData{RoomCode: room.Code})
	h.handleJoin(b, joinRoomData{RoomCode: room.Code})
	drain(t, a)
	drain(t, b)

	// A frame that names the room but carries no coordinates must not
	// reach the room as a position at 0,0.
	var d mapMoveData
	require.NoError(t, json.Unmarshal([]byte(`{"roomCode":"`+room.Code+`"}`), &d))
	h.handleMove(a, d)
	assert.Empty(t, drain(t, b))
	assert.Empty(t, drain(t, a))

	// Partially missing coordinates are just as malformed
	lat := 45.0
	h.handleMove(b, mapMoveData{RoomCode: room.Code, Lat: &lat})
	assert.Empty(t, drain(t, a))
}

func TestHandleJoin_SwitchRoomsLeavesPrevious(t *testing.T) {
	h, reg := testHub(t)
	room1 := reg.CreateRoom()
	room2 := reg.CreateRoom()

	a := NewConn(nil, "conn-a")
	b := NewConn(nil, "conn-b")
	h.handleJoin(a, joinRoomData{RoomCode: room1.Code})
	h.handleJoin(b, joinRoomData{RoomCode: room1.Code})
	drain(t, a)
	drain(t, b)

	h.handleJoin(a, joinRoomData{RoomCode: room2.Code})

	// The first room saw its tracker leave
	got := drain(t, b)
	require.Equal(t, []string{EventTrackerDisconnected, EventRoomUpdate}, eventNames(got))
	assert.Equal(t, 1, reg.Validate(room1.Code).CurrentParticipants)

	// The switcher owns the fresh room
	gotA := drain(t, a)
	require.NotEmpty(t, gotA)
	var role roleAssignedData
	decodeData(t, gotA[0], &role)
	assert.Equal(t, "tracker", role.Role)

	// Frames for the first room no longer reach the switcher
	g1 := h.lookup(room1.Code)
	require.NotNil(t, g1)
	g1.broadcast([]byte(`{"event":"x"}`), nil)
	assert.Empty(t, drain(t, a))
	assert.Len(t, drain(t, b), 1)
}

func TestMembership_ChurnKeepsSubscribers(t *testing.T) {
	h, _ := testHub(t)
	const code = "CHURN2"

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := NewConn(nil, fmt.Sprintf("churn-%d", n))
			h.addMember(code, c)

			// Until this connection leaves, the current group for the
			// room must still carry its subscription, even while other
			// goroutines empty and recreate the group.
			g := h.lookup(code)
			if assert.NotNil(t, g) {
				g.mu.Lock()
				_, subscribed := g.conns[c]
				g.mu.Unlock()
				assert.True(t, subscribed)
			}

			h.dropMember(code, c)
		}(i)
	}
	wg.Wait()

	assert.Nil(t, h.lookup(code))
}
