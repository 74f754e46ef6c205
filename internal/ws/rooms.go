package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketplace-chat/internal/observability"
)

// RoomStore lists the conversations a user participates in.
type RoomStore interface {
	ListConversationIDs(ctx context.Context, userID string) ([]string, error)
}

// RoomIndex maps conversation ids to the ids of subscribed connections.
// It never holds connection objects.
type RoomIndex struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}

	store         RoomStore
	attachTimeout time.Duration
	log           *zap.Logger
}

// NewRoomIndex creates an empty room index.
func NewRoomIndex(store RoomStore, attachTimeout time.Duration, log *zap.Logger) *RoomIndex {
	if attachTimeout <= 0 {
		attachTimeout = 5 * time.Second
	}
	return &RoomIndex{
		rooms:         make(map[string]map[string]struct{}),
		store:         store,
		attachTimeout: attachTimeout,
		log:           log,
	}
}

// AttachUserRooms subscribes a connection to every conversation its user
// participates in. Store failures are logged and swallowed: the connection
// stays live and only misses room events until it reconnects.
func (r *RoomIndex) AttachUserRooms(ctx context.Context, userID string, conn *Connection) int {
	ctx, cancel := context.WithTimeout(ctx, r.attachTimeout)
	defer cancel()

	ids, err := r.store.ListConversationIDs(ctx, userID)
	if err != nil {
		r.log.Warn("room attachment failed",
			zap.String("user_id", userID),
			zap.String("conn_id", conn.ID),
			zap.Error(err))
		return 0
	}

	joined := 0
	for _, conversationID := range ids {
		if !r.subscribe(conn, conversationID) {
			break
		}
		joined++
	}
	return joined
}

// subscribe joins the room before recording it on the connection; if the
// connection closed in between, the room entry is rolled back.
func (r *RoomIndex) subscribe(conn *Connection, conversationID string) bool {
	r.Join(conversationID, conn.ID)
	if !conn.subscribe(conversationID) {
		r.Leave(conversationID, conn.ID)
		return false
	}
	return true
}

// Join adds a connection id to a room, creating the room if needed.
func (r *RoomIndex) Join(conversationID string, connID string) {
	r.mu.Lock()
	members, ok := r.rooms[conversationID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[conversationID] = members
	}
	members[connID] = struct{}{}
	count := len(r.rooms)
	r.mu.Unlock()
	observability.SetActiveRooms(count)
}

// Leave removes a connection id from a room, deleting the room once empty.
func (r *RoomIndex) Leave(conversationID string, connID string) {
	r.mu.Lock()
	if members, ok := r.rooms[conversationID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, conversationID)
		}
	}
	count := len(r.rooms)
	r.mu.Unlock()
	observability.SetActiveRooms(count)
}

// MembersOf returns the connection ids subscribed to a room.
func (r *RoomIndex) MembersOf(conversationID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[conversationID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// RoomCount returns the number of rooms with at least one member.
func (r *RoomIndex) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
