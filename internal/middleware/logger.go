package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/handoff/pkg/logger"
)

// Logger writes a concise structured access log for each request. Internal errors recorded
// on the context by response.Error are logged here and never sent to the client.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if userID := c.GetString(CtxUserIDKey); userID != "" {
			fields = append(fields,
				zap.String("user_id", userID),
				zap.String("role", c.GetString(CtxRoleKey)),
				zap.String("token_id", c.GetString(CtxTokenIDKey)),
			)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		log := logger.WithModule("http")
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("request", fields...)
		case len(c.Errors) > 0 || status == 429:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
