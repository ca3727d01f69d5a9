package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hemanth-chakravarthy/realtime-geosync/internal/registry"
)

type RoomsAPI struct {
	Registry  *registry.Registry
	IdleAfter time.Duration // advertised as expiresIn on creation
}

type createRoomResp struct {
	RoomCode  string `json:"roomCode"`
	ExpiresIn string `json:"expiresIn"`
}

type validateResp struct {
	Valid               bool `json:"valid"`
	CurrentParticipants int  `json:"currentParticipants"`
	IsFull              bool `json:"isFull"`
}

type notFoundResp struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// Create handles POST /api/v1/rooms: mints a room and returns its code.
func (a *RoomsAPI) Create(w http.ResponseWriter, _ *http.Request) {
	room := a.Registry.CreateRoom()
	writeJSON(w, http.StatusCreated, createRoomResp{
		RoomCode:  room.Code,
		ExpiresIn: shortDuration(a.IdleAfter),
	})
}

// Validate handles GET /api/v1/rooms/validate/{code}, the joinability check.
func (a *RoomsAPI) Validate(w http.ResponseWriter, r *http.Request) {
	st := a.Registry.Validate(r.PathValue("code"))
	if !st.Valid {
		writeJSON(w, http.StatusNotFound, notFoundResp{Message: "Room not found."})
		return
	}
	writeJSON(w, http.StatusOK, validateResp{
		Valid:               true,
		CurrentParticipants: st.CurrentParticipants,
		IsFull:              st.IsFull,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// shortDuration renders 15*time.Minute as "15m" rather than "15m0s"
func shortDuration(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	return s
}
