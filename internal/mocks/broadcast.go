package mocks

import (
	"sync"

	"marketplace-chat/internal/models"
	"marketplace-chat/internal/ws"
)

// Pushed is one recorded broadcast.
type Pushed struct {
	Target ws.Target
	Event  models.Event
}

// BroadcastRecorder records pushes and room joins instead of delivering them.
type BroadcastRecorder struct {
	mu     sync.Mutex
	Pushes []Pushed
	Joins  map[string][]string
}

func NewBroadcastRecorder() *BroadcastRecorder {
	return &BroadcastRecorder{Joins: map[string][]string{}}
}

func (b *BroadcastRecorder) Push(target ws.Target, ev models.Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Pushes = append(b.Pushes, Pushed{Target: target, Event: ev})
	return 1
}

func (b *BroadcastRecorder) JoinRoom(conversationID string, userIDs ...string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Joins[conversationID] = append(b.Joins[conversationID], userIDs...)
	return len(userIDs)
}
