package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	DeviceCookie = "device_id"
	DeviceHeader = "X-Device-ID"

	deviceCookieMaxAge = 365 * 24 * 60 * 60
)

// DeviceMiddleware identifies the calling device by a long-lived cookie,
// issuing one on first contact. Clients without cookies may send the id in
// the X-Device-ID header instead.
func DeviceMiddleware(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID := ""
		if cookie, err := c.Cookie(DeviceCookie); err == nil && validDeviceID(cookie) {
			deviceID = cookie
		} else if header := c.GetHeader(DeviceHeader); validDeviceID(header) {
			deviceID = header
		}

		if deviceID == "" {
			deviceID = uuid.New().String()
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(DeviceCookie, deviceID, deviceCookieMaxAge, "/", "", secure, true)

		c.Set("device_id", deviceID)
		c.Next()
	}
}

func validDeviceID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
