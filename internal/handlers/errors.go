package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketplace-chat/internal/chat"
)

// writeError maps pipeline errors onto HTTP statuses. Store failures are
// logged and reported without detail.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation), errors.Is(err, chat.ErrSelfConversation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, chat.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("user_id", userIDFromContext(c)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
