package httpx

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/hemanth-chakravarthy/realtime-geosync/internal/app"
	"github.com/hemanth-chakravarthy/realtime-geosync/internal/registry"
	"github.com/hemanth-chakravarthy/realtime-geosync/internal/ws"
	"github.com/hemanth-chakravarthy/realtime-geosync/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub, reg *registry.Registry) http.Handler {
	mw := NewMiddleware(cfg, logger)
	api := &RoomsAPI{Registry: reg, IdleAfter: cfg.RoomIdleAfter}
	start := time.Now()

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"uptime": time.Since(start).Seconds(),
		})
	}))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint
	mux.Handle("/ws", http.HandlerFunc(hub.ServeWS))

	// Room endpoints; creation is rate limited per source IP
	mux.Handle("POST /api/v1/rooms", mw.Limit(http.HandlerFunc(api.Create)))
	mux.Handle("GET /api/v1/rooms/validate/{code}", http.HandlerFunc(api.Validate))

	return mw.Wrap(mux)
}
