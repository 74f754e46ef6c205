package ws

import "time"

// ConnInfo is request metadata captured at upgrade time.
type ConnInfo struct {
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
	ExpiresAt   time.Time
}
