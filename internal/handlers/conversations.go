package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketplace-chat/internal/chat"
)

// ConversationHandler manages conversation and message endpoints.
type ConversationHandler struct {
	svc *chat.Service
	log *zap.Logger
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(svc *chat.Service, log *zap.Logger) *ConversationHandler {
	return &ConversationHandler{svc: svc, log: log}
}

// ListConversations returns the requester's conversations, newest activity first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	page, ok := pageFromQuery(c, 20)
	if !ok {
		return
	}

	list, pagination, err := h.svc.ListConversations(requestContext(c), userIDFromContext(c), page)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list, "pagination": pagination})
}

// StartConversation returns the direct conversation with another user,
// creating it if needed.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, created, err := h.svc.GetOrCreateConversation(requestContext(c), userIDFromContext(c), req.UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"conversation": conv, "created": created})
}

// GetMessages returns a page of history and marks it read.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	page, ok := pageFromQuery(c, 50)
	if !ok {
		return
	}

	msgs, pagination, err := h.svc.FetchMessages(requestContext(c), userIDFromContext(c), c.Param("conversation_id"), page)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "pagination": pagination})
}

// PostMessage stores a message and broadcasts it.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	var req struct {
		Content     *string `json:"content"`
		MessageType string  `json:"messageType"`
		ImageURL    *string `json:"imageUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.SendMessage(requestContext(c), userIDFromContext(c), c.Param("conversation_id"), chat.MessageInput{
		Content:     req.Content,
		MessageType: req.MessageType,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// SearchUsers finds conversation candidates by name or email.
func (h *ConversationHandler) SearchUsers(c *gin.Context) {
	users, err := h.svc.SearchCandidates(requestContext(c), userIDFromContext(c), c.Query("q"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
