package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsOnlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_online_users",
			Help: "Number of users with at least one live connection.",
		},
	)
	wsActiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_rooms",
			Help: "Number of conversation rooms with live members.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	wsEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_evictions_total",
			Help: "Total number of evicted websocket connections by reason.",
		},
		[]string{"reason"},
	)
	broadcastFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_broadcast_frames_total",
			Help: "Total number of frames queued to connections by event type.",
		},
		[]string{"type"},
	)
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of persisted chat messages.",
		},
		[]string{"message_type"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsOnlineUsers,
		wsActiveRooms,
		wsEventsTotal,
		wsEvictionsTotal,
		broadcastFramesTotal,
		messagesSentTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func SetOnlineUsers(n int) {
	wsOnlineUsers.Set(float64(n))
}

func SetActiveRooms(n int) {
	wsActiveRooms.Set(float64(n))
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncEviction(reason string) {
	wsEvictionsTotal.WithLabelValues(reason).Inc()
}

func AddBroadcastFrames(eventType string, n int) {
	broadcastFramesTotal.WithLabelValues(eventType).Add(float64(n))
}

func IncMessageSent(messageType string) {
	messagesSentTotal.WithLabelValues(messageType).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
