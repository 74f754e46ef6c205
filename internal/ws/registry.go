package ws

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"marketplace-chat/internal/observability"
)

// PresenceNotifier is told when a user gains a first or loses a last connection.
type PresenceNotifier interface {
	UserOnline(userID string)
	UserOffline(userID string)
}

// Registry owns the live connections, indexed by connection id and by user.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	byUser map[string]map[string]*Connection

	rooms    *RoomIndex
	presence PresenceNotifier
	log      *zap.Logger
}

// NewRegistry creates an empty registry evicting into the given room index.
func NewRegistry(rooms *RoomIndex, presence PresenceNotifier, log *zap.Logger) *Registry {
	return &Registry{
		conns:    make(map[string]*Connection),
		byUser:   make(map[string]map[string]*Connection),
		rooms:    rooms,
		presence: presence,
		log:      log,
	}
}

// Admit registers a connection. It returns false if the id is already known.
func (r *Registry) Admit(conn *Connection) bool {
	r.mu.Lock()
	if _, exists := r.conns[conn.ID]; exists {
		r.mu.Unlock()
		return false
	}
	r.conns[conn.ID] = conn
	userConns, ok := r.byUser[conn.UserID]
	if !ok {
		userConns = make(map[string]*Connection)
		r.byUser[conn.UserID] = userConns
	}
	userConns[conn.ID] = conn
	first := len(userConns) == 1
	online := len(r.byUser)
	r.mu.Unlock()

	observability.IncWSActive()
	observability.SetOnlineUsers(online)
	if first && r.presence != nil {
		r.presence.UserOnline(conn.UserID)
	}
	return true
}

// Evict removes a connection from both indexes and every room it joined,
// then closes its transport. Evicting an unknown id is a no-op that
// returns false.
func (r *Registry) Evict(connID string, reason string) bool {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, connID)
	last := false
	if userConns, ok := r.byUser[conn.UserID]; ok {
		delete(userConns, connID)
		if len(userConns) == 0 {
			delete(r.byUser, conn.UserID)
			last = true
		}
	}
	online := len(r.byUser)
	r.mu.Unlock()

	conn.Close(closeCode(reason), reason)
	for _, conversationID := range conn.Subscriptions() {
		r.rooms.Leave(conversationID, connID)
	}

	observability.DecWSActive()
	observability.IncEviction(reason)
	observability.SetOnlineUsers(online)
	if last && r.presence != nil {
		r.presence.UserOffline(conn.UserID)
	}
	r.log.Debug("connection evicted",
		zap.String("conn_id", connID),
		zap.String("user_id", conn.UserID),
		zap.String("reason", reason))
	return true
}

// MarkAlive sets the liveness flag of a connection.
func (r *Registry) MarkAlive(connID string) bool {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	conn.setAlive()
	return true
}

// Get returns a registered connection.
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

// ConnectionsOf returns the live connections of a user.
func (r *Registry) ConnectionsOf(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userConns := r.byUser[userID]
	result := make([]*Connection, 0, len(userConns))
	for _, conn := range userConns {
		result = append(result, conn)
	}
	return result
}

// lookup resolves connection ids, skipping ids that are no longer registered.
func (r *Registry) lookup(ids []string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if conn, ok := r.conns[id]; ok {
			result = append(result, conn)
		}
	}
	return result
}

// Snapshot returns every registered connection.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		result = append(result, conn)
	}
	return result
}

// IsUserOnline reports whether the user holds at least one connection.
func (r *Registry) IsUserOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// ListOnlineUsers returns the ids of connected users, sorted.
func (r *Registry) ListOnlineUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	r.mu.RUnlock()
	sort.Strings(users)
	return users
}

// ConnectionCount returns the number of registered connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// JoinRoom subscribes every live connection of the given users to a room.
// It covers conversations created after those connections were admitted.
func (r *Registry) JoinRoom(conversationID string, userIDs ...string) int {
	joined := 0
	for _, userID := range userIDs {
		for _, conn := range r.ConnectionsOf(userID) {
			if r.rooms.subscribe(conn, conversationID) {
				joined++
			}
		}
	}
	return joined
}

// CloseAll evicts every connection and waits until their close frames are
// written or have timed out.
func (r *Registry) CloseAll(reason string) {
	conns := r.Snapshot()
	for _, conn := range conns {
		r.Evict(conn.ID, reason)
	}
	for _, conn := range conns {
		<-conn.released
	}
}
