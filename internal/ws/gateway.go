package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"marketplace-chat/internal/auth"
	"marketplace-chat/internal/models"
	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/telemetry"
)

const maxInboundFrame = 64 << 10

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway upgrades authenticated requests into registered connections and
// runs their read loops.
type Gateway struct {
	auth        auth.Authenticator
	registry    *Registry
	rooms       *RoomIndex
	broadcaster *Broadcaster
	events      *observability.EventPublisher
	opts        ConnOptions
	log         *zap.Logger
}

// NewGateway constructs a Gateway. events may be nil.
func NewGateway(authenticator auth.Authenticator, registry *Registry, rooms *RoomIndex, broadcaster *Broadcaster, events *observability.EventPublisher, opts ConnOptions, log *zap.Logger) *Gateway {
	return &Gateway{
		auth:        authenticator,
		registry:    registry,
		rooms:       rooms,
		broadcaster: broadcaster,
		events:      events,
		opts:        opts.norm(),
		log:         log,
	}
}

// Handle authenticates the request, upgrades it and admits the connection.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	identity, err := g.auth.Authenticate(ctx, c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Debug("websocket upgrade failed", zap.String("user_id", identity.UserID), zap.Error(err))
		return
	}

	info := ConnInfo{
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
		ExpiresAt:   identity.ExpiresAt,
	}
	conn := NewConnection(identity.UserID, ws, info, g.opts)
	if !g.registry.Admit(conn) {
		conn.Close(websocket.CloseInternalServerErr, "duplicate connection id")
		return
	}
	conn.Start(g.onWriteError)

	// The request context ends when the handler returns; keep its values only.
	connCtx := context.WithoutCancel(ctx)
	g.publish(connCtx, conn, "ws_connect", "")

	if err := g.broadcaster.SendTo(conn, models.ConnectionEstablished{ConnectionID: conn.ID, UserID: conn.UserID}); err != nil {
		return
	}
	go g.rooms.AttachUserRooms(connCtx, conn.UserID, conn)
	go g.readLoop(connCtx, ws, conn)
}

func (g *Gateway) onWriteError(conn *Connection, err error) {
	g.log.Debug("websocket write failed", zap.String("conn_id", conn.ID), zap.Error(err))
	g.registry.Evict(conn.ID, ReasonWriteFailed)
}

func (g *Gateway) readLoop(ctx context.Context, ws *websocket.Conn, conn *Connection) {
	reason := ReasonReadError
	defer func() {
		if g.registry.Evict(conn.ID, reason) {
			g.publish(ctx, conn, "ws_disconnect", reason)
		} else {
			g.publish(ctx, conn, "ws_disconnect", conn.CloseReason())
		}
	}()

	ws.SetReadLimit(maxInboundFrame)
	ws.SetPongHandler(func(string) error {
		g.registry.MarkAlive(conn.ID)
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				reason = ReasonClientClosed
			} else if !conn.IsClosed() {
				g.publish(ctx, conn, "ws_error", err.Error())
			}
			return
		}
		g.dispatch(conn, data)
	}
}

// dispatch handles one inbound frame. Malformed and unknown frames are
// ignored.
func (g *Gateway) dispatch(conn *Connection, data []byte) {
	var frame models.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		g.log.Debug("ignoring malformed frame", zap.String("conn_id", conn.ID), zap.Error(err))
		return
	}

	switch frame.Type {
	case models.EventHeartbeatResponse:
		g.registry.MarkAlive(conn.ID)
	case models.EventMessageTyping:
		var intent models.TypingIntent
		if err := json.Unmarshal(frame.Data, &intent); err != nil || intent.ConversationID == "" {
			return
		}
		g.relayTyping(conn, intent)
	default:
		g.log.Debug("ignoring frame", zap.String("conn_id", conn.ID), zap.String("type", string(frame.Type)))
	}
}

// relayTyping forwards a typing indicator to the other participants of a
// conversation the connection is subscribed to.
func (g *Gateway) relayTyping(conn *Connection, intent models.TypingIntent) {
	if !conn.IsSubscribed(intent.ConversationID) {
		return
	}
	g.broadcaster.Push(RoomExcept(intent.ConversationID, conn.UserID), models.MessageTyping{
		ConversationID: intent.ConversationID,
		UserID:         conn.UserID,
		IsTyping:       intent.IsTyping,
	})
}

func (g *Gateway) publish(ctx context.Context, conn *Connection, event, reason string) {
	var duration int64
	if event != "ws_connect" {
		duration = time.Since(conn.Info.ConnectedAt).Milliseconds()
	}
	g.events.PublishWS(ctx, observability.WSEvent{
		Event:      event,
		ConnID:     conn.ID,
		UserID:     conn.UserID,
		DeviceID:   conn.Info.DeviceID,
		IP:         conn.Info.IP,
		RequestID:  conn.Info.RequestID,
		TraceID:    conn.Info.TraceID,
		DurationMS: duration,
		Reason:     reason,
	})
}

// Shutdown closes every connection with a going-away frame.
func (g *Gateway) Shutdown() {
	g.registry.CloseAll(ReasonShutdown)
}
