package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// RedisCommandLatency records Redis round trips by command name.
	RedisCommandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hearth_redis_command_latency_seconds",
		Help:    "Redis command latency in seconds",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	}, []string{"operation"})

	// DatabaseQueryLatency records repository query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hearth_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// MessagesSent counts persisted chat messages by kind (direct or group).
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_messages_sent_total",
		Help: "Chat messages persisted",
	}, []string{"kind"})

	// UnreadNotifications counts unread-message events pushed to inactive participants.
	UnreadNotifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hearth_unread_notifications_total",
		Help: "Unread message notifications emitted",
	})

	// ChatReadMarks counts read receipts created by mark-read calls.
	ChatReadMarks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hearth_chat_read_marks_total",
		Help: "Messages newly marked as read",
	})

	// RefreshTokenReuse counts presented refresh tokens that were already rotated out.
	RefreshTokenReuse = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hearth_refresh_token_reuse_total",
		Help: "Refresh token reuse detections",
	})

	// SagaCompensations counts compensating writes by saga step.
	SagaCompensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_saga_compensations_total",
		Help: "Compensating actions run after a failed multi-step write",
	}, []string{"saga", "outcome"})

	// WebSocketEventsTotal counts realtime protocol events by name.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts frames dropped because a client send buffer was full.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// TrackQuery returns a func that observes the elapsed query time when called,
// typically deferred at the top of a repository method.
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// RecordWebSocketEvent increments the events counter for the event name.
func RecordWebSocketEvent(event string) {
	WebSocketEventsTotal.WithLabelValues(event).Inc()
}
