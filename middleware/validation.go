package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"

	"attendguard/utils"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

// ValidateSessionID rejects malformed :id path parameters before they reach
// the store, where session ids become part of a key.
func ValidateSessionID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sessionIDPattern.MatchString(c.Param("id")) {
			utils.BadRequest(c, "Invalid session ID")
			c.Abort()
			return
		}
		c.Next()
	}
}
