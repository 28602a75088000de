package repository

import (
	"context"

	"rental/internal/domain"
)

// Mutator computes the next state of a booking from its current state.
// It receives a private copy and may modify and return it. Returning an
// error aborts the mutation; nothing is persisted.
type Mutator func(current *domain.Booking) (*domain.Booking, error)

// BookingRepository defines the persistence operations for bookings.
type BookingRepository interface {
	// Create persists a new booking at version 0.
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by ID.
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// CompareAndApply is the only way to change a stored booking. The mutator
	// runs only if expectedVersion equals the stored version, and its result is
	// persisted with the version incremented. Writers to the same id are
	// serialized. On ErrVersionConflict the current record is returned along
	// with the error.
	CompareAndApply(ctx context.Context, id string, expectedVersion int64, mutate Mutator) (*domain.Booking, error)

	// Delete removes a booking unconditionally.
	Delete(ctx context.Context, id string) error

	// ListByCustomer retrieves bookings owned by a customer.
	ListByCustomer(ctx context.Context, customerID string) ([]*domain.Booking, error)

	// ListByDriver retrieves bookings assigned to a driver.
	ListByDriver(ctx context.Context, driverID string) ([]*domain.Booking, error)

	// ListAll retrieves every booking.
	ListAll(ctx context.Context) ([]*domain.Booking, error)
}
