package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"attendguard/logger"
)

// RequestTracingMiddleware tags the request with an id and attaches a logger
// carrying it to the request context.
func RequestTracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		ctx := logger.WithContext(c.Request.Context(), func(l zerolog.Context) zerolog.Context {
			return l.Str("request_id", requestID)
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLoggerMiddleware writes one line per request.
func RequestLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		status := c.Writer.Status()
		evt := logger.Info(ctx)
		if status >= 500 {
			evt = logger.Error(ctx)
		} else if status >= 400 {
			evt = logger.Warn(ctx)
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("http request")
	}
}
