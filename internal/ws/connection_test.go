package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionSendFailsWhenFull(t *testing.T) {
	conn := NewConnection("alice", &fakeTransport{}, ConnInfo{}, ConnOptions{SendBuffer: 1})

	require.NoError(t, conn.Send([]byte("a")))
	assert.ErrorIs(t, conn.Send([]byte("b")), ErrSendBufferFull)
}

func TestConnectionSendAfterClose(t *testing.T) {
	tr := &fakeTransport{}
	conn := NewConnection("alice", tr, ConnInfo{}, ConnOptions{})

	conn.Close(1001, ReasonShutdown)
	conn.Close(1000, ReasonClientClosed)

	assert.ErrorIs(t, conn.Send([]byte("a")), ErrConnectionClosed)
	assert.True(t, conn.IsClosed())
	assert.Equal(t, ReasonShutdown, conn.CloseReason())
	released(t, conn)
	assert.Equal(t, []int{1001}, tr.codes())
	assert.False(t, conn.subscribe("c1"))
}

func TestConnectionWriterKeepsOrder(t *testing.T) {
	tr := &fakeTransport{}
	conn := NewConnection("alice", tr, ConnInfo{}, ConnOptions{SendBuffer: 8})
	conn.Start(nil)
	defer conn.Close(1000, ReasonClientClosed)

	for _, frame := range []string{"1", "2", "3"} {
		require.NoError(t, conn.Send([]byte(frame)))
	}

	assert.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.frames) == 3
	}, time.Second, 5*time.Millisecond)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, [][]byte{[]byte("1"), []byte("2"), []byte("3")}, tr.frames)
}

func TestBeginProbeClearsFlag(t *testing.T) {
	conn := NewConnection("alice", &fakeTransport{}, ConnInfo{}, ConnOptions{})

	assert.True(t, conn.beginProbe())
	assert.False(t, conn.beginProbe())
	conn.setAlive()
	assert.True(t, conn.IsAlive())
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	conn := NewConnection("alice", &fakeTransport{}, ConnInfo{ExpiresAt: now}, ConnOptions{})
	assert.False(t, conn.SessionExpired(now.Add(-time.Second)))
	assert.True(t, conn.SessionExpired(now.Add(time.Second)))

	open := NewConnection("bob", &fakeTransport{}, ConnInfo{}, ConnOptions{})
	assert.False(t, open.SessionExpired(now))
}
