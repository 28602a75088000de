package redis

import (
	"context"
	"time"

	"rental/internal/domain"
)

// BookingCacheInterface defines the booking snapshot cache operations.
type BookingCacheInterface interface {
	Get(ctx context.Context, id string) (*domain.Booking, bool, error)
	Put(ctx context.Context, b *domain.Booking) error
	Evict(ctx context.Context, id string) error
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquirePaymentLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error)
	ReleasePaymentLock(ctx context.Context, bookingID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ BookingCacheInterface = (*BookingCache)(nil)
	_ LockStoreInterface    = (*LockStore)(nil)
)
