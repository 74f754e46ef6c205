package models

import (
	"strings"
	"time"
)

// Message types.
const (
	MessageText  = "text"
	MessageImage = "image"
)

// Message represents a persisted chat message.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	SenderID       string    `db:"sender_id" json:"senderId"`
	Content        *string   `db:"content" json:"content"`
	MessageType    string    `db:"message_type" json:"messageType"`
	ImageURL       *string   `db:"image_url" json:"imageUrl"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
	IsEdited       bool      `db:"is_edited" json:"isEdited"`
	IsDeleted      bool      `db:"is_deleted" json:"-"`
}

// MessageWithSender is a message joined with its sender's profile.
type MessageWithSender struct {
	Message
	SenderName  *string `db:"sender_name"`
	SenderEmail *string `db:"sender_email"`
	SenderImage *string `db:"sender_image"`
}

// Sender returns the public profile of the message author.
func (m MessageWithSender) Sender() UserProfile {
	return UserProfile{ID: m.SenderID, Name: m.SenderName, Email: m.SenderEmail, Image: m.SenderImage}
}

// MessageView is the client-facing shape of a message.
type MessageView struct {
	ID          string      `json:"id"`
	Content     *string     `json:"content"`
	MessageType string      `json:"messageType"`
	ImageURL    *string     `json:"imageUrl"`
	CreatedAt   time.Time   `json:"createdAt"`
	IsEdited    bool        `json:"isEdited"`
	Sender      UserProfile `json:"sender"`
	IsOwn       bool        `json:"isOwn"`
}

// NewMessageView renders a message for the given viewer.
func NewMessageView(m MessageWithSender, viewerID string) MessageView {
	return MessageView{
		ID:          m.ID,
		Content:     m.Content,
		MessageType: m.MessageType,
		ImageURL:    m.ImageURL,
		CreatedAt:   m.CreatedAt,
		IsEdited:    m.IsEdited,
		Sender:      m.Sender(),
		IsOwn:       m.SenderID == viewerID,
	}
}

// MessagePreview is the last-message summary shown in conversation lists.
type MessagePreview struct {
	ID          string    `json:"id"`
	Content     *string   `json:"content"`
	MessageType string    `json:"messageType"`
	ImageURL    *string   `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	SenderID    string    `json:"senderId"`
	SenderName  *string   `json:"senderName"`
}

// NewMessagePreview builds a preview from a message and its sender.
func NewMessagePreview(m MessageWithSender) *MessagePreview {
	return &MessagePreview{
		ID:          m.ID,
		Content:     m.Content,
		MessageType: m.MessageType,
		ImageURL:    m.ImageURL,
		CreatedAt:   m.CreatedAt,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
	}
}

// NewMessage is the validated input for persisting a message.
type NewMessage struct {
	ConversationID string
	SenderID       string
	Content        *string
	MessageType    string
	ImageURL       *string
}

// Valid reports whether the message satisfies its type's content rules:
// text needs non-blank content, image needs an image reference.
func (m NewMessage) Valid() bool {
	switch m.MessageType {
	case MessageText:
		return m.Content != nil && strings.TrimSpace(*m.Content) != ""
	case MessageImage:
		return m.ImageURL != nil && strings.TrimSpace(*m.ImageURL) != ""
	default:
		return false
	}
}
