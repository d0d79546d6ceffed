package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/thermolink/internal/api"
	"github.com/and161185/thermolink/internal/errs"
)

// statusFor maps a service error to an HTTP status and a stable reason.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrDeviceNotFound):
		return http.StatusNotFound, "device_not_found"
	case errors.Is(err, errs.ErrChallengeNotFound):
		return http.StatusUnauthorized, "challenge_not_found"
	case errors.Is(err, errs.ErrInvalidSignature):
		return http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, errs.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_token"
	case errors.Is(err, errs.ErrSubjectNotFound):
		return http.StatusUnauthorized, "subject_not_found"
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrNotOwner):
		// Foreign devices are indistinguishable from missing ones.
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, errs.ErrDeviceUnregistered):
		return http.StatusBadRequest, "device_unregistered"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// abortWithError writes the error body and stops the handler chain.
func (s *Server) abortWithError(c *gin.Context, err error) {
	s.abortWithStatus(c, err, 0)
}

// abortWithStatus is abortWithError with an optional status override.
func (s *Server) abortWithStatus(c *gin.Context, err error, status int) {
	code, reason := statusFor(err)
	if status != 0 {
		code = status
	}
	msg := err.Error()
	if errors.Is(err, errs.ErrNotOwner) {
		msg = errs.ErrNotFound.Error()
	}
	if code == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err))
		msg = "internal error"
	}
	if code == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(code, api.ErrorResponse{Error: reason, Message: msg})
}
