package models

import "time"

// Conversation types. Only direct conversations are exercised.
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// Conversation is a durable chat thread between participants.
type Conversation struct {
	ID            string     `db:"id" json:"id"`
	Title         *string    `db:"title" json:"title"`
	Type          string     `db:"type" json:"type"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
	LastMessageAt *time.Time `db:"last_message_at" json:"lastMessageAt"`
}

// Participant links a user to a conversation.
type Participant struct {
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	UserID         string    `db:"user_id" json:"userId"`
	JoinedAt       time.Time `db:"joined_at" json:"joinedAt"`
	IsAdmin        bool      `db:"is_admin" json:"isAdmin"`
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ID            string          `json:"id"`
	Title         *string         `json:"title"`
	Type          string          `json:"type"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	LastMessageAt *time.Time      `json:"lastMessageAt"`
	OtherUser     *UserProfile    `json:"otherUser"`
	UnreadCount   int             `json:"unreadCount"`
	LastMessage   *MessagePreview `json:"lastMessage"`
}

// Page selects a slice of a listing. Page is 1-based.
type Page struct {
	Page  int
	Limit int
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Pagination describes the page returned to the caller.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata for a page and total row count.
func NewPagination(p Page, total int) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}
