package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('customer', 'driver', 'admin'))
	)`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id          TEXT PRIMARY KEY,
		model       TEXT NOT NULL,
		photo_url   TEXT,
		rate_per_km DOUBLE PRECISION NOT NULL CHECK (rate_per_km >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id              TEXT PRIMARY KEY,
		customer_id     TEXT NOT NULL,
		car_id          TEXT NOT NULL,
		driver_id       TEXT NOT NULL,
		pickup_location TEXT NOT NULL,
		pickup_time     TEXT NOT NULL,
		distance_km     DOUBLE PRECISION NOT NULL,
		rate_per_km     DOUBLE PRECISION NOT NULL,
		total_fee       DOUBLE PRECISION NOT NULL,
		status          TEXT NOT NULL,
		payment_status  TEXT NOT NULL,
		version         BIGINT NOT NULL DEFAULT 0,
		cancel_reason   TEXT NOT NULL DEFAULT '',
		cancelled_by    TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL,
		confirmed_at    TIMESTAMPTZ,
		completed_at    TIMESTAMPTZ,
		cancelled_at    TIMESTAMPTZ,
		paid_at         TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_customer_idx ON bookings (customer_id)`,
	`CREATE INDEX IF NOT EXISTS bookings_driver_idx ON bookings (driver_id)`,
	`CREATE TABLE IF NOT EXISTS booking_events (
		id             BIGSERIAL PRIMARY KEY,
		booking_id     TEXT NOT NULL,
		from_status    TEXT NOT NULL,
		to_status      TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		version        BIGINT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS booking_events_booking_idx ON booking_events (booking_id)`,
}

// Migrate creates the tables used by the repositories if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
