// Package middleware holds the shared gin middleware for the HTTP server.
package middleware

import (
	"time"

	"lettings_triage_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs every request with latency through the structured logger.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.HTTPRequest(
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			float64(time.Since(start).Microseconds())/1000.0,
			c.ClientIP(),
		)
	}
}
