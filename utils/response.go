package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dbmonitorapi/pkg/apperrors"
	"dbmonitorapi/pkg/logger"
)

// JSONResponse sends a JSON response with the specified HTTP status code.
func JSONResponse(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// ErrorResponse logs the full error and sends the client-safe message with
// the status mapped from the error's kind.
func ErrorResponse(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("API error: %v", err)
	} else {
		logger.Warnf("API error: %v", err)
	}
	c.JSON(status, gin.H{"error": apperrors.PublicMessage(err)})
}

// BadRequest reports a request-binding failure.
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
