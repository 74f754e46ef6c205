package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-chat/internal/models"
)

func TestPushRoomExceptSkipsEveryConnectionOfSender(t *testing.T) {
	h := newHub()
	aliceWeb, _ := h.connect(t, "alice", 4)
	alicePhone, _ := h.connect(t, "alice", 4)
	bob, _ := h.connect(t, "bob", 4)
	h.registry.JoinRoom("c1", "alice", "bob")

	delivered := h.broadcaster.Push(RoomExcept("c1", "alice"), models.MessageTyping{ConversationID: "c1", UserID: "alice", IsTyping: true})

	assert.Equal(t, 1, delivered)
	assert.Empty(t, pending(t, aliceWeb))
	assert.Empty(t, pending(t, alicePhone))

	frames := pending(t, bob)
	require.Len(t, frames, 1)
	assert.Equal(t, "MESSAGE_TYPING", frames[0].Type)
	var typing models.MessageTyping
	require.NoError(t, json.Unmarshal(frames[0].Data, &typing))
	assert.Equal(t, "alice", typing.UserID)
	assert.True(t, typing.IsTyping)
}

func TestPushRoomReachesAllMembers(t *testing.T) {
	h := newHub()
	alice, _ := h.connect(t, "alice", 4)
	bob, _ := h.connect(t, "bob", 4)
	outsider, _ := h.connect(t, "carol", 4)
	h.registry.JoinRoom("c1", "alice", "bob")

	assert.Equal(t, 2, h.broadcaster.Push(Room("c1"), models.ConversationUpdated{ConversationID: "c1"}))
	assert.Len(t, pending(t, alice), 1)
	assert.Len(t, pending(t, bob), 1)
	assert.Empty(t, pending(t, outsider))
}

func TestPushToUserAndAll(t *testing.T) {
	h := newHub()
	alice, _ := h.connect(t, "alice", 4)
	bob, _ := h.connect(t, "bob", 4)

	assert.Equal(t, 1, h.broadcaster.Push(User("bob"), models.Heartbeat{}))
	assert.Empty(t, pending(t, alice))
	assert.Len(t, pending(t, bob), 1)

	assert.Equal(t, 2, h.broadcaster.Push(All(), models.Heartbeat{}))
}

func TestPushEvictsUnreachableConnectionAndContinues(t *testing.T) {
	h := newHub()
	dead, _ := h.connect(t, "alice", 4)
	slow, _ := h.connect(t, "bob", 1)
	live, _ := h.connect(t, "carol", 4)
	h.registry.JoinRoom("c1", "alice", "bob", "carol")

	dead.Close(1001, "gone")
	require.NoError(t, slow.Send([]byte("{}")))

	delivered := h.broadcaster.Push(Room("c1"), models.ConversationUpdated{ConversationID: "c1"})

	assert.Equal(t, 1, delivered)
	assert.Len(t, pending(t, live), 1)
	_, ok := h.registry.Get(dead.ID)
	assert.False(t, ok)
	_, ok = h.registry.Get(slow.ID)
	assert.False(t, ok)
	assert.Equal(t, ReasonSlowConsumer, slow.CloseReason())
	assert.Equal(t, []string{live.ID}, h.rooms.MembersOf("c1"))
}

func TestPushReachesLiveMembersDespiteDeadOne(t *testing.T) {
	h := newHub()
	dead, _ := h.connect(t, "alice", 4)
	bob, _ := h.connect(t, "bob", 4)
	carol, _ := h.connect(t, "carol", 4)
	h.registry.JoinRoom("c1", "alice", "bob", "carol")
	dead.Close(1001, "gone")

	assert.Equal(t, 2, h.broadcaster.Push(Room("c1"), models.ConversationUpdated{ConversationID: "c1"}))
	assert.Len(t, pending(t, bob), 1)
	assert.Len(t, pending(t, carol), 1)
	assert.Equal(t, []string{"bob", "carol"}, h.registry.ListOnlineUsers())
}

func TestPushToEmptyRoomDeliversNothing(t *testing.T) {
	h := newHub()
	assert.Zero(t, h.broadcaster.Push(Room("nobody"), models.Heartbeat{}))
}

func TestEnvelopeTimestampUsesClock(t *testing.T) {
	h := newHub()
	h.broadcaster.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	conn, _ := h.connect(t, "alice", 4)

	require.NoError(t, h.broadcaster.SendTo(conn, models.ConnectionEstablished{ConnectionID: conn.ID, UserID: "alice"}))

	frames := pending(t, conn)
	require.Len(t, frames, 1)
	assert.Equal(t, "CONNECTION_ESTABLISHED", frames[0].Type)
	assert.Equal(t, "2024-05-01T10:00:00.000Z", frames[0].Timestamp)
}

func TestWriterFailureEvicts(t *testing.T) {
	h := newHub()
	conn, tr := h.connect(t, "alice", 4)
	tr.failWrites = true
	conn.Start(func(c *Connection, err error) { h.registry.Evict(c.ID, ReasonWriteFailed) })

	require.NoError(t, h.broadcaster.SendTo(conn, models.Heartbeat{}))

	assert.Eventually(t, func() bool {
		return !h.registry.IsUserOnline("alice")
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, ReasonWriteFailed, conn.CloseReason())
}
