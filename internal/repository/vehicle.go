package repository

import (
	"context"

	"rental/internal/domain"
)

// VehicleRepository is the read-only vehicle catalog.
type VehicleRepository interface {
	// GetByID retrieves a vehicle by ID.
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)
}
