package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the collaborative whiteboard backend.
//
// Naming convention: namespace_subsystem_name
// - namespace: whiteboard (application-level grouping)
// - subsystem: websocket, room, snapshot (feature-level grouping)
// - name: specific metric (connections_active, ops_total, etc.)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "whiteboard",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of live board rooms
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "whiteboard",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active board rooms",
	})

	// RoomSessions tracks the number of joined sessions per board
	RoomSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "whiteboard",
		Subsystem: "room",
		Name:      "sessions_count",
		Help:      "Number of joined sessions in each board room",
	}, []string{"board_id"})

	// BoardOps tracks op submissions by outcome
	BoardOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whiteboard",
		Subsystem: "room",
		Name:      "ops_total",
		Help:      "Total board ops processed by outcome",
	}, []string{"result"}) // applied | duplicate | rejected | rate_limited | forbidden

	// SnapshotPersists tracks snapshot writes by status
	SnapshotPersists = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whiteboard",
		Subsystem: "snapshot",
		Name:      "persists_total",
		Help:      "Total snapshot persist attempts by status",
	}, []string{"status"}) // ok | error | skipped

	// RateLimitRejections tracks rate-limited messages by kind
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whiteboard",
		Subsystem: "room",
		Name:      "rate_limit_rejections_total",
		Help:      "Total messages rejected by rate limiting",
	}, []string{"kind"}) // join | op | presence

	// MessageProcessingDuration tracks time spent processing inbound messages
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "whiteboard",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"message_type"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
