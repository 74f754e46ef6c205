package ws

import (
	"errors"

	"github.com/gorilla/websocket"
)

// Eviction reasons, also used as metric labels.
const (
	ReasonClientClosed     = "client_closed"
	ReasonReadError        = "read_error"
	ReasonHeartbeatTimeout = "heartbeat_timeout"
	ReasonWriteFailed      = "write_failed"
	ReasonSlowConsumer     = "slow_consumer"
	ReasonTransportClosed  = "transport_closed"
	ReasonSessionExpired   = "session_expired"
	ReasonShutdown         = "shutdown"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// closeCode maps an eviction reason to the websocket close code sent to the
// peer. Clients stop reconnecting and prompt a re-login on 1008.
func closeCode(reason string) int {
	switch reason {
	case ReasonSessionExpired:
		return websocket.ClosePolicyViolation
	case ReasonClientClosed:
		return websocket.CloseNormalClosure
	default:
		return websocket.CloseGoingAway
	}
}

func reasonForSendError(err error) string {
	if errors.Is(err, ErrSendBufferFull) {
		return ReasonSlowConsumer
	}
	if errors.Is(err, ErrConnectionClosed) {
		return ReasonTransportClosed
	}
	return ReasonWriteFailed
}
