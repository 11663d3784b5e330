package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"attendguard/utils"
)

// AuthMiddleware accepts HS256 bearer tokens carrying a user_id claim and
// exposes it to handlers as "user_id".
func AuthMiddleware(secret, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			utils.Unauthorized(c, "Missing or invalid token")
			c.Abort()
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		}, jwt.WithExpirationRequired())
		if err != nil {
			utils.TrackError("auth", "invalid_token")
			utils.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || claims["user_id"] == nil {
			utils.Unauthorized(c, "Invalid token claims")
			c.Abort()
			return
		}

		if tokenType, exists := claims["type"]; exists && tokenType == "refresh" {
			utils.Unauthorized(c, "Invalid token type")
			c.Abort()
			return
		}

		if iss, ok := claims["iss"].(string); ok && issuer != "" && iss != issuer {
			utils.Unauthorized(c, "Invalid token issuer")
			c.Abort()
			return
		}

		userID, ok := claims["user_id"].(string)
		if !ok || userID == "" {
			utils.Unauthorized(c, "Invalid user ID in token")
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		if role, ok := claims["role"].(string); ok {
			c.Set("role", role)
		}
		if iat, ok := claims["iat"].(float64); ok {
			c.Set("token_issued_at", time.Unix(int64(iat), 0))
		}
		c.Next()
	}
}

// RequireRole lets through only callers whose token carries role. It must run
// after AuthMiddleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != role {
			utils.TrackError("auth", "forbidden_role")
			utils.Forbidden(c, "Insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
