package models

import (
	"encoding/json"
	"time"
)

// EventType discriminates websocket frames.
type EventType string

const (
	EventConnectionEstablished EventType = "CONNECTION_ESTABLISHED"
	EventHeartbeat             EventType = "HEARTBEAT"
	EventHeartbeatResponse     EventType = "HEARTBEAT_RESPONSE"
	EventMessageNew            EventType = "MESSAGE_NEW"
	EventConversationUpdated   EventType = "CONVERSATION_UPDATED"
	EventMessageTyping         EventType = "MESSAGE_TYPING"
)

// Event is a server-to-client frame payload. The set of implementations is
// closed: only types in this package satisfy it.
type Event interface {
	Type() EventType
	isEvent()
}

// ConnectionEstablished acknowledges a successful upgrade.
type ConnectionEstablished struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

// Heartbeat probes a connection for liveness.
type Heartbeat struct{}

// MessageNew announces a message to the other participants.
type MessageNew struct {
	ConversationID string      `json:"conversationId"`
	Message        MessageView `json:"message"`
}

// ConversationUpdated refreshes a conversation-list entry.
type ConversationUpdated struct {
	ConversationID string          `json:"conversationId"`
	LastMessageAt  *time.Time      `json:"lastMessageAt"`
	LastMessage    *MessagePreview `json:"lastMessage"`
}

// MessageTyping relays a typing indicator.
type MessageTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

func (ConnectionEstablished) Type() EventType { return EventConnectionEstablished }
func (Heartbeat) Type() EventType             { return EventHeartbeat }
func (MessageNew) Type() EventType            { return EventMessageNew }
func (ConversationUpdated) Type() EventType   { return EventConversationUpdated }
func (MessageTyping) Type() EventType         { return EventMessageTyping }

func (ConnectionEstablished) isEvent() {}
func (Heartbeat) isEvent()             {}
func (MessageNew) isEvent()            {}
func (ConversationUpdated) isEvent()   {}
func (MessageTyping) isEvent()         {}

// Envelope is the JSON frame written to clients.
type Envelope struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp string    `json:"timestamp"`
}

// EncodeEvent serialises an event into its envelope.
func EncodeEvent(ev Event, now time.Time) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      ev.Type(),
		Data:      ev,
		Timestamp: now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// InboundFrame is a client-to-server frame before its data is decoded.
type InboundFrame struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TypingIntent is the data of an inbound MESSAGE_TYPING frame.
type TypingIntent struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}
