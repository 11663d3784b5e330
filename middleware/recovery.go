package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"attendguard/logger"
	"attendguard/utils"
)

func EnhancedRecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context()).
					Str("panic", fmt.Sprint(err)).
					Str("path", c.Request.URL.Path).
					Msg("recovered from panic")
				utils.TrackError("panic", "handler")
				utils.InternalError(c, "Internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
