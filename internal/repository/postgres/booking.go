package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rental/internal/domain"
	"rental/internal/repository"
)

const bookingColumns = `id, customer_id, car_id, driver_id, pickup_location, pickup_time,
		distance_km, rate_per_km, total_fee, status, payment_status, version,
		cancel_reason, cancelled_by, created_at, updated_at,
		confirmed_at, completed_at, cancelled_at, paid_at`

// eventDeleted is the audit status recorded when a booking is hard-deleted.
const eventDeleted = "DELETED"

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// BookingRepository is a PostgreSQL implementation of repository.BookingRepository.
type BookingRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewBookingRepository creates a new PostgreSQL booking repository.
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db, now: time.Now}
}

// Create persists a new booking at version 0.
func (r *BookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	updatedAt := booking.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = booking.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, query,
		booking.ID,
		booking.CustomerID,
		booking.CarID,
		booking.DriverID,
		booking.PickupLocation,
		booking.PickupTime,
		booking.DistanceKm,
		booking.RatePerKm,
		booking.TotalFee,
		booking.Status,
		booking.PaymentStatus,
		booking.CancelReason,
		booking.CancelledBy,
		booking.CreatedAt,
		updatedAt,
		nullTime(booking.ConfirmedAt),
		nullTime(booking.CompletedAt),
		nullTime(booking.CancelledAt),
		nullTime(booking.PaidAt),
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(r.db.QueryRowContext(ctx, query, id))
}

// CompareAndApply locks the row, checks the version, applies mutate and
// writes the result together with an audit event in one transaction.
func (r *BookingRepository) CompareAndApply(ctx context.Context, id string, expectedVersion int64, mutate repository.Mutator) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	current, err := scanBooking(tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	if current.Version != expectedVersion {
		return current, repository.ErrVersionConflict
	}

	next, err := mutate(current.Clone())
	if err != nil {
		return nil, err
	}

	next = next.Clone()
	next.KeepIdentity(current)
	next.Version = current.Version + 1
	next.UpdatedAt = r.now()

	res, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET pickup_location = $1, pickup_time = $2, distance_km = $3, total_fee = $4,
			status = $5, payment_status = $6, version = $7, cancel_reason = $8, cancelled_by = $9,
			updated_at = $10, confirmed_at = $11, completed_at = $12, cancelled_at = $13, paid_at = $14
		WHERE id = $15 AND version = $16
	`,
		next.PickupLocation,
		next.PickupTime,
		next.DistanceKm,
		next.TotalFee,
		next.Status,
		next.PaymentStatus,
		next.Version,
		next.CancelReason,
		next.CancelledBy,
		next.UpdatedAt,
		nullTime(next.ConfirmedAt),
		nullTime(next.CompletedAt),
		nullTime(next.CancelledAt),
		nullTime(next.PaidAt),
		id,
		expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update booking: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return current, repository.ErrVersionConflict
	}

	if err = appendEvent(ctx, tx, id, string(current.Status), string(next.Status), next.PaymentStatus, next.Version, next.UpdatedAt); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	return next, nil
}

// Delete removes a booking and records the removal in the audit trail.
func (r *BookingRepository) Delete(ctx context.Context, id string) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var (
			status        string
			paymentStatus domain.PaymentStatus
			version       int64
		)
		err := tx.QueryRowContext(ctx,
			`DELETE FROM bookings WHERE id = $1 RETURNING status, payment_status, version`, id,
		).Scan(&status, &paymentStatus, &version)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repository.ErrNotFound
			}
			return err
		}

		return appendEvent(ctx, tx, id, status, eventDeleted, paymentStatus, version, r.now())
	})
}

// ListByCustomer retrieves bookings owned by a customer.
func (r *BookingRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE customer_id = $1 ORDER BY created_at DESC, id`, customerID)
}

// ListByDriver retrieves bookings assigned to a driver.
func (r *BookingRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE driver_id = $1 ORDER BY created_at DESC, id`, driverID)
}

// ListAll retrieves every booking.
func (r *BookingRepository) ListAll(ctx context.Context) ([]*domain.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC, id`)
}

func (r *BookingRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]*domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var b domain.Booking
	var confirmedAt, completedAt, cancelledAt, paidAt sql.NullTime

	err := row.Scan(
		&b.ID,
		&b.CustomerID,
		&b.CarID,
		&b.DriverID,
		&b.PickupLocation,
		&b.PickupTime,
		&b.DistanceKm,
		&b.RatePerKm,
		&b.TotalFee,
		&b.Status,
		&b.PaymentStatus,
		&b.Version,
		&b.CancelReason,
		&b.CancelledBy,
		&b.CreatedAt,
		&b.UpdatedAt,
		&confirmedAt,
		&completedAt,
		&cancelledAt,
		&paidAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	b.ConfirmedAt = confirmedAt.Time
	b.CompletedAt = completedAt.Time
	b.CancelledAt = cancelledAt.Time
	b.PaidAt = paidAt.Time

	return &b, nil
}

func appendEvent(ctx context.Context, q Querier, bookingID, from, to string, payment domain.PaymentStatus, version int64, at time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO booking_events (booking_id, from_status, to_status, payment_status, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, bookingID, from, to, payment, version, at)
	if err != nil {
		return fmt.Errorf("append booking event: %w", err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// Ensure BookingRepository implements repository.BookingRepository.
var _ repository.BookingRepository = (*BookingRepository)(nil)
