package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vartalap/internal/domain"
	"vartalap/internal/service"
)

// ErrorBody es el cuerpo de toda respuesta de error.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var serviceErrors = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{service.ErrEmailSendFailure, http.StatusServiceUnavailable, "email_unavailable"},
	{service.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{service.ErrAlreadyVerified, http.StatusConflict, "already_verified"},
	{service.ErrInvalidEmail, http.StatusBadRequest, "invalid_email"},
	{service.ErrWeakPassword, http.StatusBadRequest, "weak_password"},
	{service.ErrOTPInvalid, http.StatusBadRequest, "otp_invalid"},
	{service.ErrOTPExpired, http.StatusBadRequest, "otp_expired"},
	{service.ErrOTPNotRequested, http.StatusBadRequest, "otp_not_requested"},
	{service.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
}

// statusFor traduce un error de dominio o de servicio a status y código.
func statusFor(err error) (int, string) {
	for _, e := range serviceErrors {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	code := domain.CodeOf(err)
	switch code {
	case "invalid_credentials", "session_expired", "unauthenticated":
		return http.StatusUnauthorized, code
	case "email_unverified":
		return http.StatusForbidden, code
	case "empty_message", "message_too_long", "no_active_chat":
		return http.StatusBadRequest, code
	case "chat_not_found":
		return http.StatusNotFound, code
	case "store_rejected", "send_in_flight":
		return http.StatusConflict, code
	case "responder_failed":
		return http.StatusBadGateway, code
	}
	if domain.IsValidationFailure(err) {
		return http.StatusBadRequest, "validation"
	}
	return http.StatusInternalServerError, ""
}

// writeError responde con el status que corresponde a err. Los errores
// internos se registran y se ocultan tras fallback.
func writeError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(fallback, zap.Error(err), zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(status, ErrorBody{Error: fallback})
		return
	}
	msg := err.Error()
	var f *domain.Failure
	if errors.As(err, &f) {
		msg = f.UserMessage()
	}
	c.AbortWithStatusJSON(status, ErrorBody{Error: msg, Code: code})
}

func badRequest(c *gin.Context, logger *zap.Logger, what string, err error) {
	logger.Warn("invalid "+what+" request", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorBody{Error: "invalid request", Code: "validation"})
}
