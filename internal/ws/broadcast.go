package ws

import (
	"time"

	"go.uber.org/zap"

	"marketplace-chat/internal/models"
	"marketplace-chat/internal/observability"
)

type targetKind int

const (
	targetRoom targetKind = iota
	targetUser
	targetAll
)

// Target selects the connections a pushed event reaches.
type Target struct {
	kind           targetKind
	conversationID string
	userID         string
	exceptUserID   string
}

// Room targets every connection subscribed to a conversation.
func Room(conversationID string) Target {
	return Target{kind: targetRoom, conversationID: conversationID}
}

// RoomExcept targets a conversation's room minus every connection of one user.
func RoomExcept(conversationID string, userID string) Target {
	return Target{kind: targetRoom, conversationID: conversationID, exceptUserID: userID}
}

// User targets every connection of one user.
func User(userID string) Target {
	return Target{kind: targetUser, userID: userID}
}

// All targets every registered connection.
func All() Target {
	return Target{kind: targetAll}
}

// Broadcaster fans events out to connections. Delivery is best effort: a
// connection that cannot take a frame is evicted and the push carries on.
type Broadcaster struct {
	registry *Registry
	rooms    *RoomIndex
	now      func() time.Time
	log      *zap.Logger
}

// NewBroadcaster wires a broadcaster over the registry and room index.
func NewBroadcaster(registry *Registry, rooms *RoomIndex, log *zap.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, rooms: rooms, now: time.Now, log: log}
}

// Push encodes ev once and delivers it to every targeted connection. It
// returns the number of connections that accepted the frame.
func (b *Broadcaster) Push(target Target, ev models.Event) int {
	payload, err := models.EncodeEvent(ev, b.now())
	if err != nil {
		b.log.Error("encode event failed", zap.String("type", string(ev.Type())), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, conn := range b.resolve(target) {
		if target.exceptUserID != "" && conn.UserID == target.exceptUserID {
			continue
		}
		if err := b.deliver(conn, payload); err != nil {
			continue
		}
		delivered++
	}
	observability.AddBroadcastFrames(string(ev.Type()), delivered)
	return delivered
}

// SendTo delivers one event to one connection, evicting it on failure.
func (b *Broadcaster) SendTo(conn *Connection, ev models.Event) error {
	payload, err := models.EncodeEvent(ev, b.now())
	if err != nil {
		return err
	}
	if err := b.deliver(conn, payload); err != nil {
		return err
	}
	observability.AddBroadcastFrames(string(ev.Type()), 1)
	return nil
}

// deliver ignores the liveness flag: it is cleared between a heartbeat and
// its pong, and only the monitor may evict on it.
func (b *Broadcaster) deliver(conn *Connection, payload []byte) error {
	if err := conn.Send(payload); err != nil {
		reason := reasonForSendError(err)
		b.log.Debug("dropping unreachable connection",
			zap.String("conn_id", conn.ID),
			zap.String("user_id", conn.UserID),
			zap.String("reason", reason))
		b.registry.Evict(conn.ID, reason)
		return err
	}
	return nil
}

func (b *Broadcaster) resolve(target Target) []*Connection {
	switch target.kind {
	case targetRoom:
		return b.registry.lookup(b.rooms.MembersOf(target.conversationID))
	case targetUser:
		return b.registry.ConnectionsOf(target.userID)
	default:
		return b.registry.Snapshot()
	}
}
