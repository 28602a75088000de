package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"rental/internal/domain"
	"rental/internal/repository"
)

// bookingEntry holds one booking. mu serializes writers; readers load the
// current snapshot without locking. A published snapshot is never modified.
type bookingEntry struct {
	mu      sync.Mutex
	current atomic.Pointer[domain.Booking]
	deleted bool
}

// BookingRepository is an in-memory implementation of
// repository.BookingRepository with per-booking write serialization.
type BookingRepository struct {
	mu      sync.RWMutex
	entries map[string]*bookingEntry
	now     func() time.Time
}

// NewBookingRepository creates an empty in-memory booking repository.
func NewBookingRepository() *BookingRepository {
	return &BookingRepository{
		entries: make(map[string]*bookingEntry),
		now:     time.Now,
	}
}

// Create persists a new booking at version 0.
func (r *BookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	b := booking.Clone()
	b.Version = 0
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}

	e := &bookingEntry{}
	e.current.Store(b)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[b.ID]; exists {
		return repository.ErrAlreadyExists
	}
	r.entries[b.ID] = e
	return nil
}

// GetByID retrieves a booking by ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	e := r.entry(id)
	if e == nil {
		return nil, repository.ErrNotFound
	}
	return e.current.Load().Clone(), nil
}

// CompareAndApply applies mutate to the booking if expectedVersion is current.
func (r *BookingRepository) CompareAndApply(ctx context.Context, id string, expectedVersion int64, mutate repository.Mutator) (*domain.Booking, error) {
	e := r.entry(id)
	if e == nil {
		return nil, repository.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return nil, repository.ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current := e.current.Load()
	if current.Version != expectedVersion {
		return current.Clone(), repository.ErrVersionConflict
	}

	next, err := mutate(current.Clone())
	if err != nil {
		return nil, err
	}

	next = next.Clone()
	next.KeepIdentity(current)
	next.Version = current.Version + 1
	next.UpdatedAt = r.now()
	e.current.Store(next)

	return next.Clone(), nil
}

// Delete removes a booking unconditionally.
func (r *BookingRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return repository.ErrNotFound
	}

	// Wait out any in-flight writer so it cannot commit after the delete.
	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}

// ListByCustomer retrieves bookings owned by a customer.
func (r *BookingRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Booking, error) {
	return r.list(func(b *domain.Booking) bool { return b.CustomerID == customerID }), nil
}

// ListByDriver retrieves bookings assigned to a driver.
func (r *BookingRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Booking, error) {
	return r.list(func(b *domain.Booking) bool { return b.DriverID == driverID }), nil
}

// ListAll retrieves every booking.
func (r *BookingRepository) ListAll(ctx context.Context) ([]*domain.Booking, error) {
	return r.list(func(*domain.Booking) bool { return true }), nil
}

func (r *BookingRepository) entry(id string) *bookingEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

func (r *BookingRepository) list(keep func(*domain.Booking) bool) []*domain.Booking {
	r.mu.RLock()
	result := make([]*domain.Booking, 0, len(r.entries))
	for _, e := range r.entries {
		if b := e.current.Load(); keep(b) {
			result = append(result, b.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Ensure BookingRepository implements repository.BookingRepository.
var _ repository.BookingRepository = (*BookingRepository)(nil)
