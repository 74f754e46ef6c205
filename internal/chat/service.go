package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"marketplace-chat/internal/models"
	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/repositories"
	"marketplace-chat/internal/telemetry"
	"marketplace-chat/internal/ws"
)

const searchLimit = 20

// Broadcaster pushes events to live connections.
type Broadcaster interface {
	Push(target ws.Target, ev models.Event) int
}

// RoomJoiner subscribes the live connections of users to a conversation room.
type RoomJoiner interface {
	JoinRoom(conversationID string, userIDs ...string) int
}

// MessageInput is the caller-supplied part of a new message.
type MessageInput struct {
	Content     *string
	MessageType string
	ImageURL    *string
}

// Service is the message pipeline: conversations, history and sends.
type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         repositories.UserRepository
	broadcaster   Broadcaster
	rooms         RoomJoiner
	audit         *telemetry.AuditEmitter
	log           *zap.Logger
}

// NewService wires the pipeline. audit may be nil.
func NewService(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	broadcaster Broadcaster,
	rooms RoomJoiner,
	audit *telemetry.AuditEmitter,
	log *zap.Logger,
) *Service {
	return &Service{
		conversations: conversations,
		messages:      messages,
		users:         users,
		broadcaster:   broadcaster,
		rooms:         rooms,
		audit:         audit,
		log:           log,
	}
}

// GetOrCreateConversation returns the direct conversation between two users,
// creating it on first contact. created reports whether it is new.
func (s *Service) GetOrCreateConversation(ctx context.Context, requesterID, otherID string) (models.Conversation, bool, error) {
	if requesterID == "" {
		return models.Conversation{}, false, ErrUnauthenticated
	}
	if strings.TrimSpace(otherID) == "" {
		return models.Conversation{}, false, ErrValidation
	}
	if requesterID == otherID {
		return models.Conversation{}, false, ErrSelfConversation
	}

	if _, err := s.users.GetUser(ctx, otherID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return models.Conversation{}, false, ErrNotFound
		}
		return models.Conversation{}, false, storeErr("get user", err)
	}

	conv, created, err := s.conversations.GetOrCreateDirect(ctx, requesterID, otherID)
	if err != nil {
		return models.Conversation{}, false, storeErr("get or create conversation", err)
	}

	s.rooms.JoinRoom(conv.ID, requesterID, otherID)
	if created {
		s.log.Info("conversation created",
			zap.String("conversation_id", conv.ID),
			zap.String("user_id", requesterID))
		s.audit.Emit(ctx, requesterID, RequestIDFromContext(ctx), telemetry.AuditPayload{
			Action:         "conversation_created",
			ConversationID: conv.ID,
			TargetUserID:   otherID,
		})
	}
	return conv, created, nil
}

// ListConversations returns a page of the requester's conversations, most
// recently active first.
func (s *Service) ListConversations(ctx context.Context, requesterID string, page models.Page) ([]models.ConversationSummary, models.Pagination, error) {
	if requesterID == "" {
		return nil, models.Pagination{}, ErrUnauthenticated
	}
	summaries, total, err := s.conversations.ListForUser(ctx, requesterID, page)
	if err != nil {
		return nil, models.Pagination{}, storeErr("list conversations", err)
	}
	return summaries, models.NewPagination(page, total), nil
}

// FetchMessages returns a page of history in chronological order and marks
// the returned messages from other participants as read.
func (s *Service) FetchMessages(ctx context.Context, requesterID, conversationID string, page models.Page) ([]models.MessageView, models.Pagination, error) {
	if err := s.authorize(ctx, requesterID, conversationID); err != nil {
		return nil, models.Pagination{}, err
	}

	rows, total, err := s.messages.ListMessages(ctx, conversationID, page)
	if err != nil {
		return nil, models.Pagination{}, storeErr("list messages", err)
	}

	views := make([]models.MessageView, len(rows))
	unread := make([]string, 0, len(rows))
	for i, row := range rows {
		views[len(rows)-1-i] = models.NewMessageView(row, requesterID)
		if row.SenderID != requesterID {
			unread = append(unread, row.ID)
		}
	}

	if len(unread) > 0 {
		if _, err := s.messages.MarkRead(ctx, requesterID, unread); err != nil {
			s.log.Warn("mark read failed",
				zap.String("conversation_id", conversationID),
				zap.String("user_id", requesterID),
				zap.Error(err))
		}
	}
	return views, models.NewPagination(page, total), nil
}

// SendMessage persists a message and fans it out: MESSAGE_NEW to the other
// participants, CONVERSATION_UPDATED to everyone in the room.
func (s *Service) SendMessage(ctx context.Context, senderID, conversationID string, input MessageInput) (models.MessageView, error) {
	msgType := input.MessageType
	if msgType == "" {
		msgType = models.MessageText
	}
	newMsg := models.NewMessage{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        input.Content,
		MessageType:    msgType,
		ImageURL:       input.ImageURL,
	}
	if senderID == "" {
		return models.MessageView{}, ErrUnauthenticated
	}
	if !newMsg.Valid() {
		return models.MessageView{}, ErrValidation
	}
	if err := s.authorize(ctx, senderID, conversationID); err != nil {
		return models.MessageView{}, err
	}

	msg, err := s.messages.CreateMessage(ctx, newMsg)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return models.MessageView{}, ErrNotFound
		}
		return models.MessageView{}, storeErr("create message", err)
	}
	observability.IncMessageSent(msg.MessageType)

	participants, err := s.conversations.ListParticipantIDs(ctx, conversationID)
	if err != nil {
		s.log.Warn("list participants failed", zap.String("conversation_id", conversationID), zap.Error(err))
	} else {
		s.rooms.JoinRoom(conversationID, participants...)
	}

	outbound := models.NewMessageView(msg, "")
	s.broadcaster.Push(ws.RoomExcept(conversationID, senderID), models.MessageNew{
		ConversationID: conversationID,
		Message:        outbound,
	})
	createdAt := msg.CreatedAt
	s.broadcaster.Push(ws.Room(conversationID), models.ConversationUpdated{
		ConversationID: conversationID,
		LastMessageAt:  &createdAt,
		LastMessage:    models.NewMessagePreview(msg),
	})

	s.audit.Emit(ctx, senderID, RequestIDFromContext(ctx), telemetry.AuditPayload{
		Action:         "message_sent",
		ConversationID: conversationID,
		MessageID:      msg.ID,
	})
	return models.NewMessageView(msg, senderID), nil
}

// SearchCandidates finds users the requester can start a conversation with.
func (s *Service) SearchCandidates(ctx context.Context, requesterID, query string) ([]models.UserProfile, error) {
	if requesterID == "" {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(query) == "" {
		return []models.UserProfile{}, nil
	}
	users, err := s.users.SearchUsers(ctx, requesterID, query, searchLimit)
	if err != nil {
		return nil, storeErr("search users", err)
	}
	return users, nil
}

func (s *Service) authorize(ctx context.Context, userID, conversationID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if _, err := s.conversations.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return ErrNotFound
		}
		return storeErr("get conversation", err)
	}
	ok, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return storeErr("check participant", err)
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

type requestIDKey struct{}

// WithRequestID attaches the request id recorded on audit events.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
