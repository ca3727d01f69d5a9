package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/hemanth-chakravarthy/realtime-geosync/internal/registry"
	"github.com/hemanth-chakravarthy/realtime-geosync/pkg/metrics"
)

// Hub is the session gateway: it turns inbound connection events into
// registry calls and fans the results back out to room members. It holds
// no room state of its own beyond the broadcast groups.
type Hub struct {
	log *slog.Logger
	reg *registry.Registry

	mu     sync.Mutex
	groups map[string]*group // broadcast groups by room code
}

// NewHub sets up the gateway over the shared registry
func NewHub(logger *slog.Logger, reg *registry.Registry) *Hub {
	return &Hub{log: logger, reg: reg, groups: map[string]*group{}}
}

// ServeWS handles a new /ws connection: one read loop per connection,
// one write loop, cleanup on any exit.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	wsc, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	c := NewConn(wsc, uuid.NewString())
	metrics.ConnectionsActive.Inc()
	h.log.Info("ws.connected", "conn", c.id)

	// Outbound writer
	go c.WriteLoop(ctx)

	// Inbound reader: dispatch one event at a time
	for {
		payload, ok := c.Read(ctx)
		if !ok {
			break
		}

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			continue // malformed frame, drop
		}

		switch env.Event {
		case EventJoinRoom:
			var d joinRoomData
			if err := json.Unmarshal(env.Data, &d); err != nil {
				continue
			}
			h.handleJoin(c, d)
		case EventMapMove:
			var d mapMoveData
			if err := json.Unmarshal(env.Data, &d); err != nil {
				continue
			}
			h.handleMove(c, d)
		}
	}

	h.handleDisconnect(c)
	metrics.ConnectionsActive.Dec()
	h.log.Info("ws.disconnected", "conn", c.id)
	_ = c.Close()
}

// handleJoin admits the connection and notifies the room
func (h *Hub) handleJoin(c *Conn, d joinRoomData) {
	code := normalizeCode(d.RoomCode)

	role, err := h.reg.Admit(code, c.id)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		metrics.JoinsRejected.WithLabelValues("not_found").Inc()
		c.send(encode(EventError, errorData{
			Code: "NOT_FOUND",
			Msg:  fmt.Sprintf("Room %q does not exist.", code),
		}))
		return
	case errors.Is(err, registry.ErrRoomFull):
		metrics.JoinsRejected.WithLabelValues("room_full").Inc()
		c.send(encode(EventError, errorData{
			Code: "ROOM_FULL",
			Msg:  fmt.Sprintf("This room already has %d participants.", registry.MaxParticipants),
		}))
		return
	}

	if c.room == code {
		// Duplicate join from the same connection: re-emit the role only
		c.send(encode(EventRoleAssigned, roleAssignedData{Role: string(role)}))
		return
	}

	// Joining a different room implicitly leaves the previous one
	if c.room != "" {
		h.leaveRoom(c, c.room)
	}

	g := h.addMember(code, c)
	c.room = code

	c.send(encode(EventRoleAssigned, roleAssignedData{Role: string(role)}))

	// Notify existing members, then snapshot membership to everyone
	if role == registry.RoleTracker {
		g.broadcast(encode(EventTrackerConnected, noticeData{Msg: "Tracker connected."}), c)
	} else {
		g.broadcast(encode(EventFollowerJoined, noticeData{Msg: "A follower has joined your session."}), c)
	}
	h.broadcastRoomUpdate(code)

	h.log.Info("ws.join", "conn", c.id, "code", code, "role", role)
}

// handleMove relays an accepted position update to the rest of the room.
// Throttled or out-of-range updates are dropped without a reply; the
// tracker sends faster than the wire budget and the next frame corrects.
func (h *Hub) handleMove(c *Conn, d mapMoveData) {
	now := time.Now()
	if !c.allowMove(now) {
		metrics.UpdatesDropped.WithLabelValues("throttled").Inc()
		return
	}
	if d.Lat == nil || d.Lng == nil || d.Zoom == nil {
		metrics.UpdatesDropped.WithLabelValues("invalid").Inc()
		return
	}
	if !validPosition(*d.Lat, *d.Lng, *d.Zoom) {
		metrics.UpdatesDropped.WithLabelValues("invalid").Inc()
		return
	}

	code := normalizeCode(d.RoomCode)
	h.reg.Touch(code)

	g := h.lookup(code)
	if g == nil {
		return
	}
	g.broadcast(encode(EventMapUpdate, mapUpdateData{
		Lat:  roundTo(*d.Lat, 6),
		Lng:  roundTo(*d.Lng, 6),
		Zoom: roundTo(*d.Zoom, 1),
		TS:   now.UnixMilli(),
	}), c)
	metrics.UpdatesRelayed.Inc()
}

// handleDisconnect removes the connection and tells the survivors
func (h *Hub) handleDisconnect(c *Conn) {
	rem, ok := h.reg.Remove(c.id)

	if c.room != "" {
		h.dropMember(c.room, c)
	}
	if !ok {
		return
	}

	if rem.WasTracker {
		if g := h.lookup(rem.RoomCode); g != nil {
			g.broadcast(encode(EventTrackerDisconnected, noticeData{
				Msg: "The Tracker has left the session.",
			}), nil)
		}
		h.log.Info("ws.tracker_left", "code", rem.RoomCode)
	}
	// Membership snapshot for whoever is left; a no-op when the room
	// died with this connection.
	h.broadcastRoomUpdate(rem.RoomCode)
}

// broadcastRoomUpdate sends the membership snapshot to the whole room
func (h *Hub) broadcastRoomUpdate(code string) {
	st := h.reg.Validate(code)
	if !st.Valid {
		return
	}
	g := h.lookup(code)
	if g == nil {
		return
	}
	g.broadcast(encode(EventRoomUpdate, roomUpdateData{
		ParticipantCount: st.CurrentParticipants,
		MaxParticipants:  registry.MaxParticipants,
	}), nil)
}

// leaveRoom drops a connection's previous membership when it switches
// rooms, notifying the members it left behind.
func (h *Hub) leaveRoom(c *Conn, code string) {
	h.dropMember(code, c)
	rem, ok := h.reg.RemoveFrom(code, c.id)
	if !ok {
		return
	}
	if rem.WasTracker {
		if g := h.lookup(code); g != nil {
			g.broadcast(encode(EventTrackerDisconnected, noticeData{
				Msg: "The Tracker has left the session.",
			}), nil)
		}
	}
	h.broadcastRoomUpdate(code)
}

// addMember subscribes a connection to a room's broadcast group,
// creating the group if needed. Subscribe and unsubscribe both happen
// under h.mu, so a join can never land in a group that an emptiness
// check is about to discard.
func (h *Hub) addMember(code string, c *Conn) *group {
	h.mu.Lock()
	defer h.mu.Unlock()
	g := h.groups[code]
	if g == nil {
		g = newGroup()
		h.groups[code] = g
	}
	g.join(c)
	return g
}

// lookup returns the group for a room, or nil if nobody subscribed
func (h *Hub) lookup(code string) *group {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.groups[code]
}

// dropMember unsubscribes a connection, discarding the group when empty
func (h *Hub) dropMember(code string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g := h.groups[code]
	if g == nil {
		return
	}
	if g.leave(c) {
		delete(h.groups, code)
	}
}

// normalizeCode mirrors the registry's case-insensitive, trimmed lookup
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
