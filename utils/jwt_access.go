package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleOrganizer marks tokens allowed to audit and close sessions.
const RoleOrganizer = "organizer"

// GenerateAccessToken signs an HS256 access token for userID. The service
// itself only verifies tokens; this is used by the token command and tests.
func GenerateAccessToken(secret, issuer, userID string, ttl time.Duration) (string, error) {
	return GenerateAccessTokenWithRole(secret, issuer, userID, "", ttl)
}

// GenerateAccessTokenWithRole is GenerateAccessToken with a role claim. An
// empty role leaves the claim out.
func GenerateAccessTokenWithRole(secret, issuer, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"type":    "access",
		"iss":     issuer,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
