package middleware

import (
	"net/http"
	"strings"

	"github.com/ErlanBelekov/voice-scheduler/internal/reqctx"
	"github.com/ErlanBelekov/voice-scheduler/internal/token"
	"github.com/gin-gonic/gin"
)

const errUnauthorized = "Unauthorized"

type accessTokenValidator interface {
	ValidateAccessToken(raw string) (*token.Claims, error)
}

// Auth validates a Bearer access token and sets "userID" (int64) in the gin
// context and the request context.
func Auth(tokens accessTokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		claims, err := tokens.ValidateAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		c.Set("userID", userID)
		c.Request = c.Request.WithContext(reqctx.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}
