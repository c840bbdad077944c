package middlewares

import (
	"MediSlot/apperrors"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RespondJSON writes a JSON response to the client.
func RespondJSON(c *gin.Context, data interface{}, status int) {
	c.JSON(status, data)
}

// ErrorStatus maps an error of the apperrors taxonomy to an HTTP status and a
// message that is safe to show to clients.
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest, publicMessage(err, apperrors.ErrValidation)
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, publicMessage(err, apperrors.ErrNotFound) + " not found"
	case errors.Is(err, apperrors.ErrSlotUnavailable):
		return http.StatusConflict, "slot unavailable: " + publicMessage(err, apperrors.ErrSlotUnavailable)
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, publicMessage(err, apperrors.ErrConflict)
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "invalid email or password"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// publicMessage strips the sentinel suffix added by the apperrors constructors.
func publicMessage(err, sentinel error) string {
	return strings.TrimSuffix(err.Error(), ": "+sentinel.Error())
}

// HttpError logs err and writes the mapped error response. Server errors never
// expose err to the client.
func HttpError(c *gin.Context, err error) {
	status, message := ErrorStatus(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Int("status", status).
		Str("request_id", RequestID(c)).
		Str("path", c.FullPath()).
		Msg("Request failed")
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// BadRequest writes a 400 for malformed request bodies or parameters.
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}
