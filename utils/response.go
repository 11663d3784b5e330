package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope of every API answer: data on success, error
// (plus optional data) otherwise.
type Response struct {
	Status  int         `json:"-"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func fail(c *gin.Context, status int, message string, data []interface{}) {
	response := &Response{Status: status, Error: message}
	if len(data) > 0 {
		response.Data = data[0]
	}
	c.JSON(status, response)
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, &Response{
		Status: http.StatusOK,
		Data:   data,
	})
}

func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, message, nil)
}

func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, message, nil)
}

// Forbidden is used for ledger denials; message is the user-facing reason.
func Forbidden(c *gin.Context, message string) {
	fail(c, http.StatusForbidden, message, nil)
}

func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, message, nil)
}

func Conflict(c *gin.Context, message string) {
	fail(c, http.StatusConflict, message, nil)
}

// UnprocessableEntity reports a well-formed request that cannot be honored,
// such as a position outside the geofence. data carries the details.
func UnprocessableEntity(c *gin.Context, message string, data ...interface{}) {
	fail(c, http.StatusUnprocessableEntity, message, data)
}

func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, message, nil)
}
