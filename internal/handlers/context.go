package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"marketplace-chat/internal/chat"
	"marketplace-chat/internal/middleware"
	"marketplace-chat/internal/models"
)

const (
	requestIDContextKey = "request_id"
	maxPageLimit        = 100
	// maxPage keeps (page-1)*limit inside a postgres integer offset.
	maxPage = math.MaxInt32 / maxPageLimit
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

// requestContext carries the request id down to audit events.
func requestContext(c *gin.Context) context.Context {
	return chat.WithRequestID(c.Request.Context(), requestIDFromContext(c))
}

// pageFromQuery reads page/limit, falling back to defaults and capping limit.
func pageFromQuery(c *gin.Context, defaultLimit int) (models.Page, bool) {
	page := models.Page{Page: 1, Limit: defaultLimit}
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPage {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
			return page, false
		}
		page.Page = n
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return page, false
		}
		page.Limit = min(n, maxPageLimit)
	}
	return page, true
}
