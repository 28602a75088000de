package app

import (
	"context"
	"database/sql"
	"fmt"

	"rental/internal/domain"
	"rental/internal/repository/memory"
	"rental/internal/repository/postgres"
)

// DemoVehicles is the catalog loaded when seeding is enabled.
var DemoVehicles = []*domain.Vehicle{
	{ID: "car-sedan", Model: "Toyota Camry", PhotoURL: "/img/camry.jpg", RatePerKm: 2.5},
	{ID: "car-suv", Model: "Honda CR-V", PhotoURL: "/img/crv.jpg", RatePerKm: 3.2},
	{ID: "car-van", Model: "Ford Transit", PhotoURL: "/img/transit.jpg", RatePerKm: 4.0},
}

// DemoUsers is the directory loaded when seeding is enabled.
var DemoUsers = []*domain.User{
	{ID: "cust-1", Name: "Ana Lima", Role: domain.RoleCustomer},
	{ID: "cust-2", Name: "Ben Ode", Role: domain.RoleCustomer},
	{ID: "drv-1", Name: "Chidi Eze", Role: domain.RoleDriver},
	{ID: "drv-2", Name: "Dara Kim", Role: domain.RoleDriver},
	{ID: "admin-1", Name: "Operations", Role: domain.RoleAdmin},
}

// SeedMemory loads the demo catalog and directory into in-memory stores.
func SeedMemory(vehicles *memory.VehicleRepository, users *memory.UserRepository) {
	for _, v := range DemoVehicles {
		vehicles.Add(v)
	}
	for _, u := range DemoUsers {
		users.Add(u)
	}
}

// SeedPostgres upserts the demo catalog and directory in one transaction.
func SeedPostgres(ctx context.Context, db *sql.DB) error {
	return postgres.WithTx(ctx, db, func(tx *sql.Tx) error {
		vehicles := postgres.NewVehicleRepositoryWithTx(tx)
		for _, v := range DemoVehicles {
			if err := vehicles.Save(ctx, v); err != nil {
				return fmt.Errorf("seed vehicle %s: %w", v.ID, err)
			}
		}

		users := postgres.NewUserRepositoryWithTx(tx)
		for _, u := range DemoUsers {
			if err := users.Save(ctx, u); err != nil {
				return fmt.Errorf("seed user %s: %w", u.ID, err)
			}
		}
		return nil
	})
}
