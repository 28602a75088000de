package domain

import "time"

// BookingStatus represents the lifecycle status of a booking.
type BookingStatus string

const (
	BookingStatusRequested  BookingStatus = "REQUESTED"
	BookingStatusInProgress BookingStatus = "IN_PROGRESS"
	BookingStatusCompleted  BookingStatus = "COMPLETED"
	BookingStatusCancelled  BookingStatus = "CANCELLED"
)

// IsTerminal reports whether no further status transitions are possible.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusRequested, BookingStatusInProgress, BookingStatusCompleted, BookingStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus represents whether a booking has been paid.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
)

// Booking is a customer's request to use a vehicle with an assigned driver.
//
// ID, CustomerID, CarID, DriverID, RatePerKm and CreatedAt never change after
// creation. Version is bumped by the store on every committed mutation.
type Booking struct {
	ID             string
	CustomerID     string
	CarID          string
	DriverID       string
	PickupLocation string
	PickupTime     string
	DistanceKm     float64
	RatePerKm      float64 // Snapshot of the vehicle rate at creation.
	TotalFee       float64 // Unrounded RatePerKm * DistanceKm.
	Status         BookingStatus
	PaymentStatus  PaymentStatus
	Version        int64
	CancelReason   string
	CancelledBy    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ConfirmedAt    time.Time
	CompletedAt    time.Time
	CancelledAt    time.Time
	PaidAt         time.Time
}

// Clone returns an independent copy of the booking.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	cp := *b
	return &cp
}

// KeepIdentity copies the immutable fields of orig onto b.
func (b *Booking) KeepIdentity(orig *Booking) {
	b.ID = orig.ID
	b.CustomerID = orig.CustomerID
	b.CarID = orig.CarID
	b.DriverID = orig.DriverID
	b.RatePerKm = orig.RatePerKm
	b.CreatedAt = orig.CreatedAt
}
