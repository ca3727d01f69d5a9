package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geosync_rooms_created_total",
		Help: "Rooms created via the admission API.",
	})

	RoomsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geosync_rooms_purged_total",
		Help: "Rooms reclaimed by the idle reaper.",
	})

	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geosync_rooms_active",
		Help: "Live rooms in the registry.",
	})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geosync_ws_connections_active",
		Help: "Open websocket connections.",
	})

	UpdatesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geosync_position_updates_relayed_total",
		Help: "Position updates accepted and rebroadcast to rooms.",
	})

	UpdatesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geosync_position_updates_dropped_total",
		Help: "Position updates dropped before relay.",
	}, []string{"reason"}) // throttled | invalid

	JoinsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geosync_joins_rejected_total",
		Help: "Join requests rejected by the registry.",
	}, []string{"reason"}) // not_found | room_full
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
