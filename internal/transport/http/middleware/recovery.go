package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

type problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

// Recovery turns a panic into a 500 application/problem+json response. The
// panic value is logged, never sent to the client.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With("component", "recovery")
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.ErrorContext(c.Request.Context(), "panic recovered",
			"panic", recovered, "method", c.Request.Method, "path", c.Request.URL.Path)

		body := problem{
			Type:     "about:blank",
			Title:    http.StatusText(http.StatusInternalServerError),
			Status:   http.StatusInternalServerError,
			Detail:   "An unexpected error occurred.",
			Instance: c.Request.URL.Path,
		}
		b, _ := json.Marshal(body)
		c.Abort()
		c.Data(http.StatusInternalServerError, "application/problem+json", b)
	})
}
