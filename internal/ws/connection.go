package ws

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// transport is the write side of a websocket connection.
type transport interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ConnOptions tunes per-connection buffering.
type ConnOptions struct {
	SendBuffer int
	WriteWait  time.Duration
}

func (o ConnOptions) norm() ConnOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	return o
}

// Connection is one live websocket session of an authenticated user.
// Outbound frames go through a bounded queue drained by a single writer
// goroutine, so frames on one connection keep their order and a stalled peer
// only ever blocks its own writer.
type Connection struct {
	ID     string
	UserID string
	Info   ConnInfo

	ws        transport
	send      chan []byte
	writeWait time.Duration
	done      chan struct{}
	released  chan struct{}
	closeOnce sync.Once

	mu            sync.Mutex
	alive         bool
	closed        bool
	closeReason   string
	subscriptions map[string]struct{}
}

// NewConnection mints a connection with a fresh process-unique id.
func NewConnection(userID string, ws transport, info ConnInfo, opts ConnOptions) *Connection {
	opts = opts.norm()
	return &Connection{
		ID:            uuid.NewString(),
		UserID:        userID,
		Info:          info,
		ws:            ws,
		send:          make(chan []byte, opts.SendBuffer),
		writeWait:     opts.WriteWait,
		done:          make(chan struct{}),
		released:      make(chan struct{}),
		alive:         true,
		subscriptions: make(map[string]struct{}),
	}
}

// Start launches the writer goroutine. onWriteError is invoked once if a
// write fails; it must not block.
func (c *Connection) Start(onWriteError func(c *Connection, err error)) {
	go c.writeLoop(onWriteError)
}

// Send enqueues a frame without blocking.
func (c *Connection) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close marks the connection closed and stops the writer without blocking.
// The close frame and transport teardown run on their own goroutine, since a
// peer that stopped reading holds the write lock for up to writeWait. Only
// the first call has any effect.
func (c *Connection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.closeReason = reason
		close(c.done)
		c.mu.Unlock()

		go c.release(code, reason)
	})
}

func (c *Connection) release(code int, reason string) {
	defer close(c.released)
	deadline := time.Now().Add(c.writeWait)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = c.ws.Close()
}

// IsClosed reports whether Close has been called.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseReason returns the reason passed to Close, or "" while open.
func (c *Connection) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

// IsAlive returns the liveness flag.
func (c *Connection) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *Connection) setAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// beginProbe clears the liveness flag and returns its previous value.
func (c *Connection) beginProbe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.alive
	c.alive = false
	return was
}

// SessionExpired reports whether the authenticated session ended before now.
func (c *Connection) SessionExpired(now time.Time) bool {
	return !c.Info.ExpiresAt.IsZero() && now.After(c.Info.ExpiresAt)
}

// subscribe records a room on the connection. It fails once the connection
// is closed so eviction never misses a late subscription.
func (c *Connection) subscribe(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.subscriptions[conversationID] = struct{}{}
	return true
}

// IsSubscribed reports whether the connection receives a room's events.
func (c *Connection) IsSubscribed(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[conversationID]
	return ok
}

// Subscriptions returns the subscribed conversation ids, sorted.
func (c *Connection) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.subscriptions))
	for id := range c.subscriptions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Connection) writeLoop(onWriteError func(c *Connection, err error)) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				if onWriteError != nil {
					onWriteError(c, err)
				}
				return
			}
		}
	}
}

func (c *Connection) write(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}
