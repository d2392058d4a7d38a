package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ticketing/internal/apperror"
	"github.com/smallbiznis/ticketing/pkg/db/pagination"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = apperror.NotFound("not_found", "not found")
	ErrInvalidRequest = apperror.Validation("invalid_request", "request", "invalid request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusTooManyRequests {
			if retryAfter := retryAfterSeconds(lastErr.Err); retryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(retryAfter))
			}
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return ErrInvalidRequest
}

func newValidationError(field, code, message string) error {
	return apperror.Validation(code, field, message)
}

func mapError(err error) (int, errorPayload) {
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		err = apperror.Validation("invalid_page_token", "page_token", "invalid page token")
	}

	appErr, ok := apperror.As(err)
	if !ok {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	switch appErr.Kind {
	case apperror.KindValidation:
		return http.StatusBadRequest, errorPayload{
			Type:    string(appErr.Kind),
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   appErr.Field,
					Code:    appErr.Code,
					Message: appErr.Message,
				},
			},
		}
	case apperror.KindNotFound:
		return http.StatusNotFound, clientPayload(appErr)
	case apperror.KindConflict:
		return http.StatusConflict, clientPayload(appErr)
	case apperror.KindUnauthorized:
		return http.StatusUnauthorized, clientPayload(appErr)
	case apperror.KindForbidden:
		return http.StatusForbidden, clientPayload(appErr)
	case apperror.KindRateLimited:
		return http.StatusTooManyRequests, clientPayload(appErr)
	case apperror.KindPaymentGateway:
		return http.StatusBadGateway, errorPayload{
			Type:    string(appErr.Kind),
			Message: apperror.ErrPaymentGateway.Message,
		}
	case apperror.KindUnavailable:
		return http.StatusServiceUnavailable, errorPayload{
			Type:    string(appErr.Kind),
			Message: apperror.ErrServiceUnavailable.Message,
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func clientPayload(appErr *apperror.Error) errorPayload {
	message := appErr.Message
	if message == "" {
		message = appErr.Code
	}
	return errorPayload{
		Type:    string(appErr.Kind),
		Code:    appErr.Code,
		Message: message,
	}
}

func retryAfterSeconds(err error) int {
	appErr, ok := apperror.As(err)
	if !ok || appErr.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(appErr.RetryAfter.Seconds()))
}

// classifyErrorForLog feeds error_type and error_code of the request log.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return string(apperror.KindValidation), "invalid_page_token"
	}
	if appErr, ok := apperror.As(err); ok {
		return string(appErr.Kind), appErr.Code
	}
	return "internal_error", "internal_error"
}
