package registry

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/hemanth-chakravarthy/realtime-geosync/pkg/metrics"
)

const (
	// MaxParticipants is the room capacity: one tracker plus two followers.
	MaxParticipants = 3

	codeLen = 6
	// No 0/O or 1/I to keep codes readable over voice/chat.
	// 32 chars, so a random byte mod len is unbiased.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var (
	ErrNotFound = errors.New("room not found")
	ErrRoomFull = errors.New("room is full")
)

// Role of a participant within a room. The first to join is the tracker;
// everyone after is a follower. There is no promotion when the tracker
// leaves: the room stays leaderless until it empties or is reaped.
type Role string

const (
	RoleTracker  Role = "tracker"
	RoleFollower Role = "follower"
)

type Participant struct {
	ConnID string
	Role   Role
}

// Room holds one live session. Participants keep insertion order.
type Room struct {
	Code         string
	Participants []Participant
	LastActivity time.Time
}

// Removal reports what Remove took out, so the caller can decide
// whether the rest of the room needs a tracker-disconnected notice.
type Removal struct {
	RoomCode   string
	WasTracker bool
}

// Status is the read-only answer to a joinability query.
type Status struct {
	Valid               bool
	CurrentParticipants int
	IsFull              bool
}

// Registry owns every live room. All access goes through one mutex:
// admits racing each other or the reaper must serialize, and the state
// is small enough that finer locking buys nothing.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	log   *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		log:   logger,
	}
}

// CreateRoom makes an empty room under a fresh code and returns a copy.
func (r *Registry) CreateRoom() Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := generateCode()
	for r.rooms[code] != nil {
		code = generateCode()
	}

	room := &Room{Code: code, LastActivity: time.Now()}
	r.rooms[code] = room

	metrics.RoomsCreated.Inc()
	metrics.RoomsActive.Set(float64(len(r.rooms)))
	r.log.Info("room.created", "code", code)
	return *room
}

// Get returns a snapshot of the room. Lookup is case-insensitive and
// ignores surrounding whitespace.
func (r *Registry) Get(code string) (Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[normalize(code)]
	if !ok {
		return Room{}, false
	}
	return snapshot(room), true
}

// Admit adds a connection to a room and assigns its role. Re-admitting a
// connection already in the room returns its existing role, so a client
// retrying a join before its first attempt timed out stays idempotent.
func (r *Registry) Admit(code, connID string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[normalize(code)]
	if !ok {
		return "", ErrNotFound
	}

	for _, p := range room.Participants {
		if p.ConnID == connID {
			return p.Role, nil
		}
	}

	if len(room.Participants) >= MaxParticipants {
		return "", ErrRoomFull
	}

	role := RoleFollower
	if len(room.Participants) == 0 {
		role = RoleTracker
	}
	room.Participants = append(room.Participants, Participant{ConnID: connID, Role: role})
	room.LastActivity = time.Now()

	r.log.Info("room.joined",
		"code", room.Code,
		"conn", connID,
		"role", role,
		"participants", len(room.Participants))
	return role, nil
}

// Remove takes a connection out of whichever room holds it. An emptied
// room is deleted immediately, no grace period.
func (r *Registry) Remove(connID string) (Removal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, room := range r.rooms {
		if rem, ok := r.removeLocked(room, connID); ok {
			return rem, ok
		}
	}
	return Removal{}, false
}

// RemoveFrom takes a connection out of one specific room, for callers
// that already know where it lives.
func (r *Registry) RemoveFrom(code, connID string) (Removal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[normalize(code)]
	if !ok {
		return Removal{}, false
	}
	return r.removeLocked(room, connID)
}

func (r *Registry) removeLocked(room *Room, connID string) (Removal, bool) {
	for i, p := range room.Participants {
		if p.ConnID != connID {
			continue
		}
		room.Participants = append(room.Participants[:i], room.Participants[i+1:]...)
		if len(room.Participants) == 0 {
			delete(r.rooms, room.Code)
			metrics.RoomsActive.Set(float64(len(r.rooms)))
			r.log.Info("room.emptied", "code", room.Code)
		}
		return Removal{RoomCode: room.Code, WasTracker: p.Role == RoleTracker}, true
	}
	return Removal{}, false
}

// Validate answers a joinability query without mutating anything.
func (r *Registry) Validate(code string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[normalize(code)]
	if !ok {
		return Status{}
	}
	return Status{
		Valid:               true,
		CurrentParticipants: len(room.Participants),
		IsFull:              len(room.Participants) >= MaxParticipants,
	}
}

// Touch refreshes a room's activity timestamp. No-op for unknown codes.
func (r *Registry) Touch(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[normalize(code)]; ok {
		room.LastActivity = time.Now()
	}
}

// PurgeIdle deletes every room idle strictly longer than threshold and
// returns how many went. Only the reaper calls this.
func (r *Registry) PurgeIdle(threshold time.Duration) int {
	return r.purgeAt(time.Now(), threshold)
}

func (r *Registry) purgeAt(now time.Time, threshold time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for code, room := range r.rooms {
		if now.Sub(room.LastActivity) > threshold {
			delete(r.rooms, code)
			purged++
			metrics.RoomsPurged.Inc()
			r.log.Info("room.purged", "code", code)
		}
	}
	if purged > 0 {
		metrics.RoomsActive.Set(float64(len(r.rooms)))
	}
	return purged
}

// Len reports the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func snapshot(room *Room) Room {
	out := Room{Code: room.Code, LastActivity: room.LastActivity}
	out.Participants = append(out.Participants, room.Participants...)
	return out
}

// generateCode draws 6 random chars from the code alphabet.
func generateCode() string {
	b := make([]byte, codeLen)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is effectively fatal elsewhere; fall back
		// to a timestamp-derived code rather than panic.
		ts := time.Now().UnixNano()
		for i := range b {
			b[i] = codeAlphabet[int(ts>>(uint(i)*5))&31]
		}
		return string(b)
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
