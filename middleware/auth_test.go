package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_secret_key"

func init() {
	gin.SetMode(gin.TestMode)
}

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	now := time.Now()
	valid := jwt.MapClaims{
		"user_id": "alice",
		"type":    "access",
		"iss":     "attendguard",
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	}
	with := func(key string, value any) jwt.MapClaims {
		c := jwt.MapClaims{}
		for k, v := range valid {
			c[k] = v
		}
		if value == nil {
			delete(c, key)
		} else {
			c[key] = value
		}
		return c
	}

	tests := []struct {
		name   string
		header string
		status int
		user   string
	}{
		{name: "valid", header: "Bearer " + sign(t, valid), status: http.StatusOK, user: "alice"},
		{name: "missing header", status: http.StatusUnauthorized},
		{name: "no bearer prefix", header: sign(t, valid), status: http.StatusUnauthorized},
		{name: "refresh token", header: "Bearer " + sign(t, with("type", "refresh")), status: http.StatusUnauthorized},
		{name: "no expiry", header: "Bearer " + sign(t, with("exp", nil)), status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + sign(t, with("exp", now.Add(-time.Minute).Unix())), status: http.StatusUnauthorized},
		{name: "missing user", header: "Bearer " + sign(t, with("user_id", nil)), status: http.StatusUnauthorized},
		{name: "numeric user", header: "Bearer " + sign(t, with("user_id", 42)), status: http.StatusUnauthorized},
		{name: "empty user", header: "Bearer " + sign(t, with("user_id", "")), status: http.StatusUnauthorized},
		{name: "foreign issuer", header: "Bearer " + sign(t, with("iss", "elsewhere")), status: http.StatusUnauthorized},
		{name: "no issuer claim", header: "Bearer " + sign(t, with("iss", nil)), status: http.StatusOK, user: "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/", AuthMiddleware(testSecret, "attendguard"), func(c *gin.Context) {
				c.String(http.StatusOK, c.GetString("user_id"))
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.user, w.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareRejectsOtherAlgorithms(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": "alice",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/", AuthMiddleware(testSecret, ""), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	claims := func(role any) jwt.MapClaims {
		c := jwt.MapClaims{
			"user_id": "alice",
			"exp":     time.Now().Add(time.Hour).Unix(),
		}
		if role != nil {
			c["role"] = role
		}
		return c
	}

	tests := []struct {
		name   string
		claims jwt.MapClaims
		status int
	}{
		{name: "organizer", claims: claims("organizer"), status: http.StatusOK},
		{name: "no role", claims: claims(nil), status: http.StatusForbidden},
		{name: "other role", claims: claims("student"), status: http.StatusForbidden},
		{name: "non-string role", claims: claims(true), status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/", AuthMiddleware(testSecret, ""), RequireRole("organizer"), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+sign(t, tt.claims))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
