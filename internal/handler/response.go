package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rental/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	BookingID string `json:"booking_id,omitempty"`
	Version   *int64 `json:"version,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Version conflicts carry the current version so the client can reload.
func respondError(c *gin.Context, err error) {
	status, code := mapErrorToHTTPStatus(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var be *service.BookingError
	if errors.As(err, &be) {
		resp.BookingID = be.BookingID
		if be.Version >= 0 {
			v := be.Version
			resp.Version = &v
		}
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		resp.Error = "internal error"
	}
	c.JSON(status, resp)
}

// respondBadRequest sends a 400 for malformed input caught before the service.
func respondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: "INVALID_ARGUMENT"})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service errors to an HTTP status and error code.
func mapErrorToHTTPStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"

	case errors.Is(err, service.ErrVersionConflict):
		return http.StatusConflict, "VERSION_CONFLICT"

	case errors.Is(err, service.ErrIllegalTransition):
		return http.StatusConflict, "ILLEGAL_TRANSITION"

	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden, "UNAUTHORIZED"

	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"

	case errors.Is(err, service.ErrPaymentDeclined):
		return http.StatusPaymentRequired, "PAYMENT_DECLINED"

	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
