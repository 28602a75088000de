package service

import (
	"errors"
	"fmt"

	"rental/internal/repository"
)

var (
	// ErrNotFound is returned when a booking does not exist.
	ErrNotFound = repository.ErrNotFound

	// ErrVersionConflict is returned when the caller's expected version is stale.
	ErrVersionConflict = repository.ErrVersionConflict

	// ErrIllegalTransition is returned when the event is not allowed from the booking's status.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrUnauthorized is returned when the actor may not perform the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidArgument is returned when request fields are missing or malformed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPaymentDeclined is returned when the payment gateway refuses a charge.
	ErrPaymentDeclined = errors.New("payment declined")
)

// BookingError carries the booking and its last known version alongside
// one of the sentinel errors above.
type BookingError struct {
	Op        string
	BookingID string
	Version   int64 // -1 when the version is unknown
	Err       error
}

func (e *BookingError) Error() string {
	if e.Version >= 0 {
		return fmt.Sprintf("%s booking %s (version %d): %v", e.Op, e.BookingID, e.Version, e.Err)
	}
	return fmt.Sprintf("%s booking %s: %v", e.Op, e.BookingID, e.Err)
}

func (e *BookingError) Unwrap() error { return e.Err }

func bookingErr(op, id string, version int64, err error) error {
	if err == nil {
		return nil
	}
	var be *BookingError
	if errors.As(err, &be) {
		return err
	}
	return &BookingError{Op: op, BookingID: id, Version: version, Err: err}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func unauthorizedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

func illegalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalTransition, fmt.Sprintf(format, args...))
}
