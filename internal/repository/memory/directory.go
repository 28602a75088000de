package memory

import (
	"context"
	"sort"
	"sync"

	"rental/internal/domain"
	"rental/internal/repository"
)

// VehicleRepository is an in-memory vehicle catalog.
type VehicleRepository struct {
	mu       sync.RWMutex
	vehicles map[string]*domain.Vehicle
}

// NewVehicleRepository creates a catalog seeded with the given vehicles.
func NewVehicleRepository(vehicles ...*domain.Vehicle) *VehicleRepository {
	r := &VehicleRepository{vehicles: make(map[string]*domain.Vehicle)}
	for _, v := range vehicles {
		r.Add(v)
	}
	return r
}

// Add inserts or replaces a vehicle.
func (r *VehicleRepository) Add(v *domain.Vehicle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *v
	r.vehicles[v.ID] = &cp
}

// GetByID retrieves a vehicle by ID.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

// UserRepository is an in-memory user directory.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewUserRepository creates a directory seeded with the given users.
func NewUserRepository(users ...*domain.User) *UserRepository {
	r := &UserRepository{users: make(map[string]*domain.User)}
	for _, u := range users {
		r.Add(u)
	}
	return r
}

// Add inserts or replaces a user.
func (r *UserRepository) Add(u *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// ListByRole retrieves all users with the given role, ordered by ID.
func (r *UserRepository) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*domain.User, 0)
	for _, u := range r.users {
		if u.Role == role {
			cp := *u
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Ensure interfaces are satisfied.
var (
	_ repository.VehicleRepository = (*VehicleRepository)(nil)
	_ repository.UserRepository    = (*UserRepository)(nil)
)
