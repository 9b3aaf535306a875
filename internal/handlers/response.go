package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/seat-reservation-engine/internal/middleware"
	"github.com/smarttransit/seat-reservation-engine/internal/services"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Seats   []int  `json:"seats,omitempty"`
}

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation:    http.StatusBadRequest,
	services.KindNotFound:      http.StatusNotFound,
	services.KindAuthorization: http.StatusForbidden,
	services.KindConflict:      http.StatusConflict,
	services.KindTransient:     http.StatusServiceUnavailable,
}

// respondError writes err as JSON. BookingErrors map to their kind's status;
// anything else is logged and reported as a 500 without details.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var be *services.BookingError
	if errors.As(err, &be) {
		status, ok := kindStatus[be.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		if be.Kind == services.KindTransient {
			c.Header("Retry-After", "1")
		}
		c.JSON(status, ErrorResponse{
			Error:   string(be.Kind),
			Message: be.Message,
			Code:    be.Code,
			Field:   be.Field,
			Seats:   be.Seats,
		})
		return
	}

	logger.WithFields(logrus.Fields{
		"path":  c.Request.URL.Path,
		"error": err.Error(),
	}).Error("Unhandled booking error")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Something went wrong, please try again later",
		Code:    "INTERNAL_ERROR",
	})
}

func badRequest(c *gin.Context, field, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation",
		Message: message,
		Code:    "INVALID_FIELD",
		Field:   field,
	})
}

// requireUser returns the authenticated user or writes a 401
func requireUser(c *gin.Context) (middleware.UserContext, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User context not found",
			Code:    "MISSING_USER_CONTEXT",
		})
		return middleware.UserContext{}, false
	}
	return userCtx, true
}
