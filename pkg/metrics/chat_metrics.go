package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat metrics for the realtime channel and the message lifecycle
var (
	ChatConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_websocket_connections_active",
		Help: "Current number of authenticated chat connections on this instance",
	})

	ChatWebSocketConnectionUnauthorizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_websocket_connection_unauthorized_total",
		Help: "Total number of rejected WebSocket connections",
	})

	ChatEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_total",
		Help: "Total number of client events handled, by event and outcome",
	}, []string{"event", "status"})

	ChatMessagePersistedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_message_persisted_total",
		Help: "Total number of messages persisted to the conversation store",
	}, []string{"status"})

	ChatMessageSendUnauthorizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_message_send_unauthorized_total",
		Help: "Total number of chat actions rejected because users do not follow each other",
	})

	ChatMessageDeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_message_delivery_duration_seconds",
		Help:    "Time taken by each step of sending a message",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"step"}) // "encrypt", "persist", "broadcast"

	ChatHandlerPanicTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_handler_panic_total",
		Help: "Total number of panics recovered while handling a client event",
	})

	ChatClientMessageDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_client_message_dropped_total",
		Help: "Total number of frames dropped to clients",
	}, []string{"reason"})

	ChatRedisPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_redis_publish_total",
		Help: "Total number of fan-out publishes to Redis",
	}, []string{"status"})

	ChatRedisSubscriptionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_redis_subscription_active",
		Help: "1 while the fan-out pattern subscription is running",
	})

	KeyGenerationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_key_requests_total",
		Help: "Total number of key generation or recovery requests, by outcome",
	}, []string{"result"}) // "generated", "recovered", "invalid_password", "locked", "error"
)
