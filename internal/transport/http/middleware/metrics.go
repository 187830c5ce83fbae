package middleware

import (
	"strconv"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/metrics"
	"github.com/gin-gonic/gin"
)

const uploadRoute = "/UploadAudio"

// Metrics records latency and status per matched route. Unmatched paths are
// folded into "unknown" so that probing does not blow up label cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		if route == uploadRoute && c.Request.ContentLength > 0 {
			metrics.UploadBytes.Observe(float64(c.Request.ContentLength))
		}

		start := time.Now()
		c.Next()

		labels := []string{c.Request.Method, route, strconv.Itoa(c.Writer.Status())}
		metrics.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
	}
}
