package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-chat/internal/models"
)

var conversationCols = []string{"id", "title", "type", "created_at", "updated_at", "last_message_at"}

var messageCols = []string{"id", "conversation_id", "sender_id", "content", "message_type", "image_url",
	"created_at", "updated_at", "is_edited", "is_deleted", "sender_name", "sender_email", "sender_image"}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

func q(fragment string) string { return regexp.QuoteMeta(fragment) }

func TestGetOrCreateDirectReturnsExisting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock")).WithArgs("alice:bob").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("JOIN conversation_participants p1")).WithArgs("alice", "bob").
		WillReturnRows(sqlmock.NewRows(conversationCols).AddRow("conv-1", nil, "direct", now, now, nil))
	mock.ExpectCommit()

	conv, created, err := repo.GetOrCreateDirect(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "conv-1", conv.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateDirectCreatesConversationAndParticipants(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock")).WithArgs("alice:bob").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("JOIN conversation_participants p1")).WithArgs("alice", "bob").
		WillReturnRows(sqlmock.NewRows(conversationCols))
	mock.ExpectQuery(q("INSERT INTO conversations")).WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(conversationCols).AddRow("conv-2", nil, "direct", now, now, nil))
	mock.ExpectExec(q("INSERT INTO conversation_participants")).WithArgs("conv-2", "alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO conversation_participants")).WithArgs("conv-2", "bob", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	conv, created, err := repo.GetOrCreateDirect(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "conv-2", conv.ID)
	assert.Equal(t, models.ConversationDirect, conv.Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateDirectRollsBackOnParticipantFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("JOIN conversation_participants p1")).WillReturnRows(sqlmock.NewRows(conversationCols))
	mock.ExpectQuery(q("INSERT INTO conversations")).
		WillReturnRows(sqlmock.NewRows(conversationCols).AddRow("conv-3", nil, "direct", now, now, nil))
	mock.ExpectExec(q("INSERT INTO conversation_participants")).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, _, err := repo.GetOrCreateDirect(context.Background(), "alice", "bob")
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetConversationNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)

	mock.ExpectQuery(q("FROM conversations c WHERE c.id=$1")).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(conversationCols))

	_, err := repo.GetConversation(context.Background(), "missing")
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestIsParticipant(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)

	mock.ExpectQuery(q("SELECT EXISTS")).WithArgs("conv-1", "alice").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.IsParticipant(context.Background(), "conv-1", "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListConversationIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)

	mock.ExpectQuery(q("SELECT conversation_id FROM conversation_participants")).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"conversation_id"}).AddRow("c1").AddRow("c2"))

	ids, err := repo.ListConversationIDs(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)
}

func TestListForUserBuildsSummaries(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)
	now := time.Now()

	cols := append(append([]string{}, conversationCols...),
		"other_id", "other_name", "other_email", "other_image", "unread_count",
		"last_id", "last_content", "last_type", "last_image_url", "last_created_at", "last_sender_id", "last_sender_name")

	mock.ExpectQuery(q("SELECT COUNT(*) FROM conversation_participants")).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(q("ORDER BY c.last_message_at DESC NULLS LAST")).WithArgs("alice", 20, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("c1", nil, "direct", now, now, now, "bob", "Bob", "bob@x.io", nil, 3,
				"m9", "hello", "text", nil, now, "bob", "Bob").
			AddRow("c2", nil, "direct", now, now, nil, "carol", "Carol", nil, nil, 0,
				nil, nil, nil, nil, nil, nil, nil))

	list, total, err := repo.ListForUser(context.Background(), "alice", models.Page{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 2)

	assert.Equal(t, 3, list[0].UnreadCount)
	require.NotNil(t, list[0].OtherUser)
	assert.Equal(t, "bob", list[0].OtherUser.ID)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "m9", list[0].LastMessage.ID)
	assert.Equal(t, "bob", list[0].LastMessage.SenderID)

	assert.Nil(t, list[1].LastMessage)
	assert.Nil(t, list[1].LastMessageAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessageBumpsConversation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	now := time.Now()
	content := "hi"

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO messages")).
		WithArgs(sqlmock.AnyArg(), "conv-1", "alice", &content, models.MessageText, (*string)(nil), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE conversations SET last_message_at")).WithArgs("conv-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM messages m")).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow("m1", "conv-1", "alice", "hi", "text", nil, now, now, false, false, "Alice", "a@x.io", nil))
	mock.ExpectCommit()

	msg, err := repo.CreateMessage(context.Background(), models.NewMessage{
		ConversationID: "conv-1",
		SenderID:       "alice",
		Content:        &content,
		MessageType:    models.MessageText,
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	require.NotNil(t, msg.SenderName)
	assert.Equal(t, "Alice", *msg.SenderName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessageMissingConversationRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	content := "hi"

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO messages")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE conversations SET last_message_at")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.CreateMessage(context.Background(), models.NewMessage{
		ConversationID: "gone",
		SenderID:       "alice",
		Content:        &content,
		MessageType:    models.MessageText,
	})
	require.ErrorIs(t, err, ErrConversationNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesNewestFirstWithTotal(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	now := time.Now()

	mock.ExpectQuery(q("SELECT COUNT(*) FROM messages")).WithArgs("conv-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(q("ORDER BY m.created_at DESC, m.id DESC")).WithArgs("conv-1", 50, 0).
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow("m3", "conv-1", "bob", "c", "text", nil, now, now, false, false, "Bob", nil, nil).
			AddRow("m2", "conv-1", "alice", "b", "text", nil, now.Add(-time.Minute), now, false, false, "Alice", nil, nil).
			AddRow("m1", "conv-1", "bob", "a", "text", nil, now.Add(-2*time.Minute), now, false, false, "Bob", nil, nil))

	msgs, total, err := repo.ListMessages(context.Background(), "conv-1", models.Page{Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m3", msgs[0].ID)
}

func TestMarkReadSkipsEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	n, err := repo.MarkRead(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadIgnoresConflicts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectExec(q("ON CONFLICT (message_id, user_id) DO NOTHING")).WithArgs(sqlmock.AnyArg(), "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.MarkRead(context.Background(), "alice", []string{"m1", "m2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGetUserNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(q("FROM users WHERE id=$1")).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "image"}))

	_, err := repo.GetUser(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSearchUsersEscapesPattern(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(q("name ILIKE $2 OR email ILIKE $2")).WithArgs("alice", `%50\%\_off%`, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "image"}).AddRow("bob", "Bob", "bob@x.io", nil))

	users, err := repo.SearchUsers(context.Background(), "alice", " 50%_off ", 20)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].ID)
}
