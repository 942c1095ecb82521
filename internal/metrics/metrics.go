package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chato_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chato_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chato_messages_sent_total",
			Help: "Total direct messages sent",
		},
		[]string{"kind"}, // "text" or "voice"
	)

	MessagesMarkedRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chato_messages_marked_read_total",
			Help: "Total messages flipped to read",
		},
	)

	// Realtime metrics
	RealtimeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chato_realtime_sessions",
			Help: "Currently connected realtime sessions",
		},
	)

	RealtimeHandshakes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chato_realtime_handshakes_total",
			Help: "Realtime handshakes by outcome",
		},
		[]string{"outcome"}, // "accepted", "unauthorized", "upgrade_failed"
	)

	RealtimeFramesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chato_realtime_frames_emitted_total",
			Help: "Frames enqueued to realtime sessions",
		},
		[]string{"event"},
	)

	RealtimeFramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chato_realtime_frames_dropped_total",
			Help: "Frames dropped because a session buffer was full",
		},
	)

	EmitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chato_emit_failures_total",
			Help: "Realtime emits or domain events that failed after a successful write",
		},
		[]string{"sink"}, // "realtime" or "events"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chato_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chato_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chato_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	PostgresLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chato_postgres_latency_seconds",
			Help:    "PostgreSQL query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
