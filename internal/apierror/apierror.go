// Package apierror writes error responses in the {"error": {"code", "message"}} envelope.
package apierror

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-tracker/internal/errs"
	"go.uber.org/zap"
)

// Error codes exposed to clients.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodeUpstreamFailure = "UPSTREAM_FAILURE"
	CodeInternalError   = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Write aborts the request with the given status and envelope.
func Write(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func Validation(c *gin.Context, message string) {
	Write(c, http.StatusBadRequest, CodeValidationError, message)
}

func Unauthorized(c *gin.Context, message string) {
	Write(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// FromError maps a service error onto the envelope. Unclassified errors are
// logged and reported as 500 without their text.
func FromError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		Write(c, http.StatusNotFound, CodeNotFound, errs.Message(err))
	case errors.Is(err, errs.ErrForbidden):
		Write(c, http.StatusForbidden, CodeForbidden, errs.Message(err))
	case errors.Is(err, errs.ErrValidation):
		Write(c, http.StatusBadRequest, CodeValidationError, errs.Message(err))
	case errors.Is(err, errs.ErrConflict):
		Write(c, http.StatusConflict, CodeConflict, errs.Message(err))
	case errors.Is(err, errs.ErrUpstream):
		Write(c, http.StatusBadGateway, CodeUpstreamFailure, errs.Message(err))
	default:
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		Write(c, http.StatusInternalServerError, CodeInternalError, "internal server error")
	}
}
