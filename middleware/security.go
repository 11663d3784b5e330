package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendguard/utils"
)

// DefaultMaxBodyBytes fits a marking request with a full canvas data URL.
const DefaultMaxBodyBytes int64 = 256 << 10

// RequestSizeLimiter rejects bodies larger than maxSize. Bodies without a
// declared length are cut off while they are read.
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodyBytes
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.TrackError("request", "too_large")
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, &utils.Response{
				Status: http.StatusRequestEntityTooLarge,
				Error:  "Request body too large",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// SecurityHeaders sets the response headers every API answer carries.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}
