package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appLog "agenda-service/internal/log"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger tags each request with an id and logs it when done.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		start := time.Now()

		c.Next()

		kv := []any{
			"id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Microsecond),
		}
		if p, ok := principalOK(c); ok {
			kv = append(kv, "technician", p.TechnicianID, "role", p.Role)
		}
		if c.Writer.Status() >= 500 {
			appLog.Warn("request", kv...)
			return
		}
		appLog.Debug("request", kv...)
	}
}
