package observability

import (
	"context"

	"go.uber.org/zap"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// Publisher delivers JSON events to the message broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

const wsRoutingKey = "ws_events.conversations"

// WSEvent describes a websocket lifecycle transition.
type WSEvent struct {
	Event      string
	ConnID     string
	UserID     string
	DeviceID   string
	IP         string
	RequestID  string
	TraceID    string
	DurationMS int64
	Reason     string
}

// EventPublisher publishes websocket lifecycle events. A nil publisher only
// updates metrics.
type EventPublisher struct {
	publisher Publisher
	log       *zap.Logger
}

func NewEventPublisher(publisher Publisher, log *zap.Logger) *EventPublisher {
	return &EventPublisher{publisher: publisher, log: log}
}

func (p *EventPublisher) PublishWS(ctx context.Context, ev WSEvent) {
	IncWSEvent(ev.Event)
	if p == nil || p.publisher == nil {
		return
	}

	envelope := EventEnvelope{
		EventType: "ws_events",
		EventName: ev.Event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       ev.Event,
				"conn_id":     ev.ConnID,
				"duration_ms": ev.DurationMS,
				"reason":      ev.Reason,
			},
			"identity": map[string]interface{}{
				"user_id":   ev.UserID,
				"device_id": ev.DeviceID,
				"ip":        ev.IP,
			},
		},
	}
	if err := p.publisher.Publish(ctx, wsRoutingKey, envelope, BuildHeaders(ev.RequestID, ev.TraceID)); err != nil {
		IncAMQPPublishError()
		p.log.Warn("ws event publish failed", zap.String("event", ev.Event), zap.Error(err))
	}
}
