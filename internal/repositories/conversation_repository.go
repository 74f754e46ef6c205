package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"marketplace-chat/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	GetOrCreateDirect(ctx context.Context, userID string, otherID string) (models.Conversation, bool, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error)
	ListConversationIDs(ctx context.Context, userID string) ([]string, error)
	ListParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	ListForUser(ctx context.Context, userID string, page models.Page) ([]models.ConversationSummary, int, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `c.id, c.title, c.type, c.created_at, c.updated_at, c.last_message_at`

const findDirectQuery = `SELECT ` + conversationColumns + ` FROM conversations c
        JOIN conversation_participants p1 ON p1.conversation_id = c.id AND p1.user_id = $1
        JOIN conversation_participants p2 ON p2.conversation_id = c.id AND p2.user_id = $2
        WHERE c.type = 'direct'
        AND (SELECT COUNT(*) FROM conversation_participants p WHERE p.conversation_id = c.id) = 2
        LIMIT 1`

// GetOrCreateDirect returns the direct conversation between two users,
// creating it with both participant rows when none exists. The boolean
// reports whether a conversation was created.
func (r *ConversationRepo) GetOrCreateDirect(ctx context.Context, userID string, otherID string) (models.Conversation, bool, error) {
	pair := []string{userID, otherID}
	sort.Strings(pair)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// serialise concurrent get-or-create calls for the same pair
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, pair[0]+":"+pair[1]); err != nil {
		return models.Conversation{}, false, err
	}

	var conv models.Conversation
	err = tx.GetContext(ctx, &conv, findDirectQuery, pair[0], pair[1])
	if err == nil {
		if err = tx.Commit(); err != nil {
			return models.Conversation{}, false, err
		}
		return conv, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, false, err
	}

	now := time.Now().UTC()
	if err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (id, type, created_at, updated_at) VALUES ($1, 'direct', $2, $2)
        RETURNING id, title, type, created_at, updated_at, last_message_at`, uuid.NewString(), now).StructScan(&conv); err != nil {
		return models.Conversation{}, false, err
	}
	for _, id := range pair {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, joined_at) VALUES ($1, $2, $3)`, conv.ID, id, now); err != nil {
			return models.Conversation{}, false, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, false, err
	}
	return conv, true, nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`, conversationID, userID)
	return exists, err
}

// ListConversationIDs returns every conversation the user participates in.
func (r *ConversationRepo) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT conversation_id FROM conversation_participants WHERE user_id=$1`, userID)
	return ids, err
}

// ListParticipantIDs returns the user ids participating in a conversation.
func (r *ConversationRepo) ListParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM conversation_participants WHERE conversation_id=$1 ORDER BY joined_at`, conversationID)
	return ids, err
}

const listConversationsQuery = `SELECT ` + conversationColumns + `,
        o.id AS other_id, o.name AS other_name, o.email AS other_email, o.image AS other_image,
        (SELECT COUNT(*) FROM messages m
            WHERE m.conversation_id = c.id AND m.sender_id <> $1 AND m.is_deleted = FALSE
            AND NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.user_id = $1)) AS unread_count,
        lm.id AS last_id, lm.content AS last_content, lm.message_type AS last_type, lm.image_url AS last_image_url,
        lm.created_at AS last_created_at, lm.sender_id AS last_sender_id, ls.name AS last_sender_name
        FROM conversations c
        JOIN conversation_participants me ON me.conversation_id = c.id AND me.user_id = $1
        LEFT JOIN LATERAL (
            SELECT u.id, u.name, u.email, u.image FROM conversation_participants p
            JOIN users u ON u.id = p.user_id
            WHERE p.conversation_id = c.id AND p.user_id <> $1
            ORDER BY p.joined_at LIMIT 1
        ) o ON TRUE
        LEFT JOIN LATERAL (
            SELECT m.id, m.content, m.message_type, m.image_url, m.created_at, m.sender_id FROM messages m
            WHERE m.conversation_id = c.id AND m.is_deleted = FALSE
            ORDER BY m.created_at DESC LIMIT 1
        ) lm ON TRUE
        LEFT JOIN users ls ON ls.id = lm.sender_id
        ORDER BY c.last_message_at DESC NULLS LAST, c.updated_at DESC
        LIMIT $2 OFFSET $3`

type conversationRow struct {
	models.Conversation
	OtherID        *string    `db:"other_id"`
	OtherName      *string    `db:"other_name"`
	OtherEmail     *string    `db:"other_email"`
	OtherImage     *string    `db:"other_image"`
	UnreadCount    int        `db:"unread_count"`
	LastID         *string    `db:"last_id"`
	LastContent    *string    `db:"last_content"`
	LastType       *string    `db:"last_type"`
	LastImageURL   *string    `db:"last_image_url"`
	LastCreatedAt  *time.Time `db:"last_created_at"`
	LastSenderID   *string    `db:"last_sender_id"`
	LastSenderName *string    `db:"last_sender_name"`
}

func (row conversationRow) summary() models.ConversationSummary {
	s := models.ConversationSummary{
		ID:            row.ID,
		Title:         row.Title,
		Type:          row.Type,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		LastMessageAt: row.LastMessageAt,
		UnreadCount:   row.UnreadCount,
	}
	if row.OtherID != nil {
		s.OtherUser = &models.UserProfile{ID: *row.OtherID, Name: row.OtherName, Email: row.OtherEmail, Image: row.OtherImage}
	}
	if row.LastID != nil {
		preview := &models.MessagePreview{
			ID:         *row.LastID,
			Content:    row.LastContent,
			ImageURL:   row.LastImageURL,
			SenderName: row.LastSenderName,
		}
		if row.LastType != nil {
			preview.MessageType = *row.LastType
		}
		if row.LastCreatedAt != nil {
			preview.CreatedAt = *row.LastCreatedAt
		}
		if row.LastSenderID != nil {
			preview.SenderID = *row.LastSenderID
		}
		s.LastMessage = preview
	}
	return s
}

// ListForUser returns one page of the user's conversations, most recently
// active first, together with the user's total conversation count.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string, page models.Page) ([]models.ConversationSummary, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM conversation_participants WHERE user_id=$1`, userID); err != nil {
		return nil, 0, err
	}

	var rows []conversationRow
	if err := r.db.SelectContext(ctx, &rows, listConversationsQuery, userID, page.Limit, page.Offset()); err != nil {
		return nil, 0, err
	}

	result := make([]models.ConversationSummary, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.summary())
	}
	return result, total, nil
}
