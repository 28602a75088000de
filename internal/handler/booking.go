package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rental/internal/domain"
	"rental/internal/middleware"
	"rental/internal/service"
)

// BookingHandler handles HTTP requests for bookings.
type BookingHandler struct {
	bookings *service.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(bookings *service.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// CreateBookingBody is the HTTP request body for creating a booking.
type CreateBookingBody struct {
	CarID          string   `json:"car_id"`
	DriverID       string   `json:"driver_id"`
	PickupLocation string   `json:"pickup_location"`
	PickupTime     string   `json:"pickup_time"`
	DistanceKm     *float64 `json:"distance_km"`
}

// EditTripBody is the HTTP request body for editing trip details.
// Omitted fields are left unchanged.
type EditTripBody struct {
	ExpectedVersion *int64   `json:"expected_version"`
	DistanceKm      *float64 `json:"distance_km,omitempty"`
	PickupLocation  *string  `json:"pickup_location,omitempty"`
	PickupTime      *string  `json:"pickup_time,omitempty"`
}

// TransitionBody is the HTTP request body for confirm, complete and pay.
type TransitionBody struct {
	ExpectedVersion *int64 `json:"expected_version"`
}

// CancelBookingBody is the HTTP request body for cancelling a booking.
type CancelBookingBody struct {
	ExpectedVersion *int64 `json:"expected_version"`
	Reason          string `json:"reason,omitempty"`
}

// BookingResponse is the HTTP representation of a booking.
type BookingResponse struct {
	ID             string  `json:"id"`
	CustomerID     string  `json:"customer_id"`
	CarID          string  `json:"car_id"`
	DriverID       string  `json:"driver_id"`
	PickupLocation string  `json:"pickup_location"`
	PickupTime     string  `json:"pickup_time"`
	DistanceKm     float64 `json:"distance_km"`
	RatePerKm      float64 `json:"rate_per_km"`
	TotalFee       float64 `json:"total_fee"`
	Status         string  `json:"status"`
	PaymentStatus  string  `json:"payment_status"`
	Version        int64   `json:"version"`
	CancelReason   string  `json:"cancel_reason,omitempty"`
	CancelledBy    string  `json:"cancelled_by,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
	ConfirmedAt    string  `json:"confirmed_at,omitempty"`
	CompletedAt    string  `json:"completed_at,omitempty"`
	CancelledAt    string  `json:"cancelled_at,omitempty"`
	PaidAt         string  `json:"paid_at,omitempty"`
}

// DriverBookingsResponse is the driver dashboard projection.
type DriverBookingsResponse struct {
	AwaitingConfirmation []BookingResponse `json:"awaiting_confirmation"`
	Active               []BookingResponse `json:"active"`
	History              []BookingResponse `json:"history"`
}

// Create handles POST /v1/bookings
func (h *BookingHandler) Create(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var body CreateBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	b, err := h.bookings.CreateBooking(c.Request.Context(), service.CreateBookingRequest{
		Actor:          actor,
		CarID:          body.CarID,
		DriverID:       body.DriverID,
		PickupLocation: body.PickupLocation,
		PickupTime:     body.PickupTime,
		DistanceKm:     body.DistanceKm,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toBookingResponse(b))
}

// Get handles GET /v1/bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	b, err := h.bookings.GetBooking(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(b))
}

// EditTrip handles PATCH /v1/bookings/:id/trip
func (h *BookingHandler) EditTrip(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var body EditTripBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if body.ExpectedVersion == nil {
		respondBadRequest(c, "expected_version is required")
		return
	}

	b, err := h.bookings.EditTrip(c.Request.Context(), service.EditTripRequest{
		Actor:           actor,
		ID:              c.Param("id"),
		ExpectedVersion: *body.ExpectedVersion,
		DistanceKm:      body.DistanceKm,
		PickupLocation:  body.PickupLocation,
		PickupTime:      body.PickupTime,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(b))
}

// Confirm handles POST /v1/bookings/:id/confirm
func (h *BookingHandler) Confirm(c *gin.Context) {
	h.transition(c, h.bookings.ConfirmBooking)
}

// Complete handles POST /v1/bookings/:id/complete
func (h *BookingHandler) Complete(c *gin.Context) {
	h.transition(c, h.bookings.CompleteBooking)
}

// Pay handles POST /v1/bookings/:id/pay
func (h *BookingHandler) Pay(c *gin.Context) {
	h.transition(c, h.bookings.MarkPaid)
}

// Cancel handles POST /v1/bookings/:id/cancel
func (h *BookingHandler) Cancel(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var body CancelBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if body.ExpectedVersion == nil {
		respondBadRequest(c, "expected_version is required")
		return
	}

	b, err := h.bookings.CancelBooking(c.Request.Context(), service.CancelBookingRequest{
		Actor:           actor,
		ID:              c.Param("id"),
		ExpectedVersion: *body.ExpectedVersion,
		Reason:          body.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(b))
}

// Delete handles DELETE /v1/bookings/:id
func (h *BookingHandler) Delete(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	b, err := h.bookings.DeleteBooking(c.Request.Context(), service.DeleteBookingRequest{
		Actor: actor,
		ID:    c.Param("id"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(b))
}

// ListAll handles GET /v1/bookings
func (h *BookingHandler) ListAll(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	filter, ok := filterFromQuery(c)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListAllBookings(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponses(bookings))
}

// ListForCustomer handles GET /v1/customers/:id/bookings
func (h *BookingHandler) ListForCustomer(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	filter, ok := filterFromQuery(c)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListBookingsForCustomer(c.Request.Context(), actor, c.Param("id"), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponses(bookings))
}

// ListActiveForCustomer handles GET /v1/customers/:id/bookings/active
func (h *BookingHandler) ListActiveForCustomer(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListActiveBookingsForCustomer(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponses(bookings))
}

// ListForDriver handles GET /v1/drivers/:id/bookings
func (h *BookingHandler) ListForDriver(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	grouped, err := h.bookings.ListBookingsForDriver(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, DriverBookingsResponse{
		AwaitingConfirmation: toBookingResponses(grouped.AwaitingConfirmation),
		Active:               toBookingResponses(grouped.Active),
		History:              toBookingResponses(grouped.History),
	})
}

func (h *BookingHandler) transition(c *gin.Context, fn func(ctx context.Context, req service.TransitionRequest) (*domain.Booking, error)) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var body TransitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if body.ExpectedVersion == nil {
		respondBadRequest(c, "expected_version is required")
		return
	}

	b, err := fn(c.Request.Context(), service.TransitionRequest{
		Actor:           actor,
		ID:              c.Param("id"),
		ExpectedVersion: *body.ExpectedVersion,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(b))
}

func actorOrAbort(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing actor identity", Code: "UNAUTHENTICATED"})
	}
	return actor, ok
}

func filterFromQuery(c *gin.Context) (service.BookingFilter, bool) {
	filter := service.BookingFilter{Status: domain.BookingStatus(c.Query("status"))}
	if raw := c.Query("unpaid"); raw != "" {
		unpaid, err := strconv.ParseBool(raw)
		if err != nil {
			respondBadRequest(c, "unpaid must be a boolean")
			return filter, false
		}
		filter.OnlyUnpaid = unpaid
	}
	return filter, true
}

func toBookingResponses(bookings []*domain.Booking) []BookingResponse {
	out := make([]BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResponse(b))
	}
	return out
}

func toBookingResponse(b *domain.Booking) BookingResponse {
	return BookingResponse{
		ID:             b.ID,
		CustomerID:     b.CustomerID,
		CarID:          b.CarID,
		DriverID:       b.DriverID,
		PickupLocation: b.PickupLocation,
		PickupTime:     b.PickupTime,
		DistanceKm:     b.DistanceKm,
		RatePerKm:      b.RatePerKm,
		TotalFee:       service.RoundFee(b.TotalFee),
		Status:         string(b.Status),
		PaymentStatus:  string(b.PaymentStatus),
		Version:        b.Version,
		CancelReason:   b.CancelReason,
		CancelledBy:    b.CancelledBy,
		CreatedAt:      formatTime(b.CreatedAt),
		UpdatedAt:      formatTime(b.UpdatedAt),
		ConfirmedAt:    formatTime(b.ConfirmedAt),
		CompletedAt:    formatTime(b.CompletedAt),
		CancelledAt:    formatTime(b.CancelledAt),
		PaidAt:         formatTime(b.PaidAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
