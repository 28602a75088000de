package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"rental/internal/service"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{service.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{service.ErrVersionConflict, http.StatusConflict, "VERSION_CONFLICT"},
		{service.ErrIllegalTransition, http.StatusConflict, "ILLEGAL_TRANSITION"},
		{service.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
		{service.ErrInvalidArgument, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{service.ErrPaymentDeclined, http.StatusPaymentRequired, "PAYMENT_DECLINED"},
		{fmt.Errorf("wrapped: %w", service.ErrPaymentDeclined), http.StatusPaymentRequired, "PAYMENT_DECLINED"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		status, code := mapErrorToHTTPStatus(tt.err)
		if status != tt.wantStatus || code != tt.wantCode {
			t.Errorf("%v: got (%d, %s), want (%d, %s)", tt.err, status, code, tt.wantStatus, tt.wantCode)
		}
	}
}

func TestRespondError_BookingContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		err         error
		wantVersion *int64
		wantMessage string
	}{
		{
			name:        "known version",
			err:         &service.BookingError{Op: "confirm", BookingID: "b1", Version: 4, Err: service.ErrVersionConflict},
			wantVersion: func() *int64 { v := int64(4); return &v }(),
			wantMessage: "confirm booking b1 (version 4): version conflict",
		},
		{
			name:        "unknown version",
			err:         &service.BookingError{Op: "get", BookingID: "b1", Version: -1, Err: service.ErrNotFound},
			wantMessage: "get booking b1: entity not found",
		},
		{
			name:        "internal errors are masked",
			err:         &service.BookingError{Op: "confirm", BookingID: "b1", Version: -1, Err: errors.New("pq: connection reset")},
			wantMessage: "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tt.err)

			var got ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.BookingID != "b1" {
				t.Errorf("expected booking_id b1, got %q", got.BookingID)
			}
			if got.Error != tt.wantMessage {
				t.Errorf("expected message %q, got %q", tt.wantMessage, got.Error)
			}
			switch {
			case tt.wantVersion == nil && got.Version != nil:
				t.Errorf("expected no version, got %d", *got.Version)
			case tt.wantVersion != nil && (got.Version == nil || *got.Version != *tt.wantVersion):
				t.Errorf("expected version %d, got %v", *tt.wantVersion, got.Version)
			}
		})
	}
}
