package repository

import (
	"context"

	"rental/internal/domain"
)

// UserRepository is the read-only user and driver directory.
type UserRepository interface {
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// ListByRole retrieves all users with the given role.
	ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error)
}
