package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquirePaymentLock attempts to take the payment lock for a booking.
// Returns true if the lock was acquired, false if another charge holds it.
func (s *LockStore) AcquirePaymentLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, paymentLockKey(bookingID), "1", ttl).Result()
}

// ReleasePaymentLock releases the payment lock for a booking.
func (s *LockStore) ReleasePaymentLock(ctx context.Context, bookingID string) error {
	return s.client.Del(ctx, paymentLockKey(bookingID)).Err()
}

func paymentLockKey(bookingID string) string {
	return fmt.Sprintf("lock:booking-payment:%s", bookingID)
}
