package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-chat/internal/auth"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "userID"

// AuthMiddleware validates the request session using the session authority.
func AuthMiddleware(authenticator auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := authenticator.Authenticate(c.Request.Context(), c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Next()
	}
}
