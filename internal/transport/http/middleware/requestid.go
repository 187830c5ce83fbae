package middleware

import (
	"github.com/ErlanBelekov/voice-scheduler/internal/reqctx"
	"github.com/gin-gonic/gin"
)

const requestIDHeader = "X-Request-ID"

// RequestID injects a request ID into the context and response header.
// An incoming X-Request-ID of sane length is preserved; otherwise a new
// UUID v4 is generated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = reqctx.NewRequestID()
		}

		c.Request = c.Request.WithContext(reqctx.WithRequestID(c.Request.Context(), id))
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
