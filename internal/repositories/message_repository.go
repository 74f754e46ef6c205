package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"marketplace-chat/internal/models"
)

// MessageRepository defines interactions for chat messages and read markers.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.MessageWithSender, error)
	ListMessages(ctx context.Context, conversationID string, page models.Page) ([]models.MessageWithSender, int, error)
	MarkRead(ctx context.Context, userID string, messageIDs []string) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageWithSenderColumns = `m.id, m.conversation_id, m.sender_id, m.content, m.message_type, m.image_url,
        m.created_at, m.updated_at, m.is_edited, m.is_deleted,
        u.name AS sender_name, u.email AS sender_email, u.image AS sender_image`

// CreateMessage stores a message and bumps the conversation's activity
// timestamps in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.NewMessage) (models.MessageWithSender, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.MessageWithSender{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	id := uuid.NewString()
	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `INSERT INTO messages (id, conversation_id, sender_id, content, message_type, image_url, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`, id, msg.ConversationID, msg.SenderID, msg.Content, msg.MessageType, msg.ImageURL, now); err != nil {
		return models.MessageWithSender{}, err
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `UPDATE conversations SET last_message_at=$2, updated_at=$2 WHERE id=$1`, msg.ConversationID, now)
	if err != nil {
		return models.MessageWithSender{}, err
	}
	var count int64
	if count, err = res.RowsAffected(); err != nil {
		return models.MessageWithSender{}, err
	}
	if count == 0 {
		err = ErrConversationNotFound
		return models.MessageWithSender{}, err
	}

	var stored models.MessageWithSender
	if err = tx.GetContext(ctx, &stored, `SELECT `+messageWithSenderColumns+` FROM messages m
        LEFT JOIN users u ON u.id = m.sender_id WHERE m.id=$1`, id); err != nil {
		return models.MessageWithSender{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.MessageWithSender{}, err
	}
	return stored, nil
}

// ListMessages returns one page of non-deleted messages, newest first, and
// the total number of non-deleted messages in the conversation.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string, page models.Page) ([]models.MessageWithSender, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM messages WHERE conversation_id=$1 AND is_deleted = FALSE`, conversationID); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + messageWithSenderColumns + ` FROM messages m
        LEFT JOIN users u ON u.id = m.sender_id
        WHERE m.conversation_id=$1 AND m.is_deleted = FALSE
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT $2 OFFSET $3`
	var msgs []models.MessageWithSender
	if err := r.db.SelectContext(ctx, &msgs, query, conversationID, page.Limit, page.Offset()); err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// MarkRead inserts read markers for the user. Existing markers are left
// untouched; the returned count covers newly inserted rows only.
func (r *MessageRepo) MarkRead(ctx context.Context, userID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id)
        SELECT unnest($1::text[]), $2
        ON CONFLICT (message_id, user_id) DO NOTHING`, pq.Array(messageIDs), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
