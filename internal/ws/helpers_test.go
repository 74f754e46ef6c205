package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTransport struct {
	mu         sync.Mutex
	frames     [][]byte
	closeCodes []int
	closed     bool
	failWrites bool
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites || f.closed {
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeTransport) WriteControl(_ int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	code := 0
	if len(data) >= 2 {
		code = int(data[0])<<8 | int(data[1])
	}
	f.closeCodes = append(f.closeCodes, code)
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) codes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.closeCodes...)
}

type fakeStore struct {
	rooms map[string][]string
	err   error
}

func (s *fakeStore) ListConversationIDs(_ context.Context, userID string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rooms[userID], nil
}

type fakePresence struct {
	mu      sync.Mutex
	online  []string
	offline []string
}

func (p *fakePresence) UserOnline(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = append(p.online, userID)
}

func (p *fakePresence) UserOffline(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offline = append(p.offline, userID)
}

type frame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

type hub struct {
	store       *fakeStore
	presence    *fakePresence
	rooms       *RoomIndex
	registry    *Registry
	broadcaster *Broadcaster
}

func newHub() *hub {
	log := zap.NewNop()
	store := &fakeStore{rooms: map[string][]string{}}
	presence := &fakePresence{}
	rooms := NewRoomIndex(store, time.Second, log)
	registry := NewRegistry(rooms, presence, log)
	return &hub{
		store:       store,
		presence:    presence,
		rooms:       rooms,
		registry:    registry,
		broadcaster: NewBroadcaster(registry, rooms, log),
	}
}

// connect admits a connection whose writer is not started, so queued frames
// stay observable through pending.
func (h *hub) connect(t *testing.T, userID string, buffer int) (*Connection, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	conn := NewConnection(userID, tr, ConnInfo{ConnectedAt: time.Now()}, ConnOptions{SendBuffer: buffer})
	require.True(t, h.registry.Admit(conn))
	return conn, tr
}

// released waits for the close frame and transport teardown of conn.
func released(t *testing.T, conn *Connection) {
	t.Helper()
	select {
	case <-conn.released:
	case <-time.After(2 * time.Second):
		t.Fatalf("connection %s was not released", conn.ID)
	}
}

func pending(t *testing.T, conn *Connection) []frame {
	t.Helper()
	var frames []frame
	for {
		select {
		case payload := <-conn.send:
			var f frame
			require.NoError(t, json.Unmarshal(payload, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}
