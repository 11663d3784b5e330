package middleware

import "github.com/gin-gonic/gin"

// CacheControlMiddleware sets Cache-Control on every response, e.g. "no-store"
// for attendance data that must never be served from a shared cache.
func CacheControlMiddleware(value string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", value)
		c.Next()
	}
}
