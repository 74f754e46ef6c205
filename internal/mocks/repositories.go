package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"marketplace-chat/internal/models"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) GetOrCreateDirect(ctx context.Context, userID string, otherID string) (models.Conversation, bool, error) {
	args := m.Called(ctx, userID, otherID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Bool(1), args.Error(2)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *ConversationRepositoryMock) ListParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	args := m.Called(ctx, conversationID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID string, page models.Page) ([]models.ConversationSummary, int, error) {
	args := m.Called(ctx, userID, page)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Int(1), args.Error(2)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.NewMessage) (models.MessageWithSender, error) {
	args := m.Called(ctx, msg)
	var out models.MessageWithSender
	if val := args.Get(0); val != nil {
		out = val.(models.MessageWithSender)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, conversationID string, page models.Page) ([]models.MessageWithSender, int, error) {
	args := m.Called(ctx, conversationID, page)
	var list []models.MessageWithSender
	if val := args.Get(0); val != nil {
		list = val.([]models.MessageWithSender)
	}
	return list, args.Int(1), args.Error(2)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, userID string, messageIDs []string) (int64, error) {
	args := m.Called(ctx, userID, messageIDs)
	return args.Get(0).(int64), args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID string) (models.UserProfile, error) {
	args := m.Called(ctx, userID)
	var u models.UserProfile
	if val := args.Get(0); val != nil {
		u = val.(models.UserProfile)
	}
	return u, args.Error(1)
}

func (m *UserRepositoryMock) SearchUsers(ctx context.Context, excludeID string, query string, limit int) ([]models.UserProfile, error) {
	args := m.Called(ctx, excludeID, query, limit)
	var list []models.UserProfile
	if val := args.Get(0); val != nil {
		list = val.([]models.UserProfile)
	}
	return list, args.Error(1)
}
