package postgres

import (
	"context"
	"database/sql"
	"errors"

	"rental/internal/domain"
	"rental/internal/repository"
)

// VehicleRepository is a PostgreSQL implementation of repository.VehicleRepository.
type VehicleRepository struct {
	q Querier
}

// NewVehicleRepository creates a new PostgreSQL vehicle repository.
func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{q: db}
}

// NewVehicleRepositoryWithTx creates a vehicle repository using a transaction.
func NewVehicleRepositoryWithTx(tx *sql.Tx) *VehicleRepository {
	return &VehicleRepository{q: tx}
}

// Save adds a vehicle to the catalog or refreshes an existing entry.
func (r *VehicleRepository) Save(ctx context.Context, v *domain.Vehicle) error {
	query := `
		INSERT INTO vehicles (id, model, photo_url, rate_per_km) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET model = EXCLUDED.model, photo_url = EXCLUDED.photo_url, rate_per_km = EXCLUDED.rate_per_km`
	_, err := r.q.ExecContext(ctx, query, v.ID, v.Model, v.PhotoURL, v.RatePerKm)
	return err
}

// GetByID retrieves a vehicle by ID.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	query := `SELECT id, model, COALESCE(photo_url, ''), rate_per_km FROM vehicles WHERE id = $1`

	var v domain.Vehicle
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&v.ID,
		&v.Model,
		&v.PhotoURL,
		&v.RatePerKm,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &v, nil
}

var _ repository.VehicleRepository = (*VehicleRepository)(nil)
