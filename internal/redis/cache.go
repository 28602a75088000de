package redis

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"rental/internal/domain"
)

// DefaultBookingCacheTTL is used when no TTL is configured.
const DefaultBookingCacheTTL = 30 * time.Second

const bookingCachePrefix = "cache:booking:"

// tombstoneVersion outranks every real version so no Put can overwrite an eviction.
const tombstoneVersion = math.MaxInt64

// putIfNewer stores the snapshot only if the cached version is older.
// KEYS[1] = key, ARGV[1] = version, ARGV[2] = payload, ARGV[3] = ttl in ms.
var putIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'd', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// CachedBooking is the JSON snapshot kept in Redis.
type CachedBooking struct {
	ID             string    `json:"id"`
	CustomerID     string    `json:"customer_id"`
	CarID          string    `json:"car_id"`
	DriverID       string    `json:"driver_id"`
	PickupLocation string    `json:"pickup_location"`
	PickupTime     string    `json:"pickup_time"`
	DistanceKm     float64   `json:"distance_km"`
	RatePerKm      float64   `json:"rate_per_km"`
	TotalFee       float64   `json:"total_fee"`
	Status         string    `json:"status"`
	PaymentStatus  string    `json:"payment_status"`
	Version        int64     `json:"version"`
	CancelReason   string    `json:"cancel_reason,omitempty"`
	CancelledBy    string    `json:"cancelled_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ConfirmedAt    time.Time `json:"confirmed_at"`
	CompletedAt    time.Time `json:"completed_at"`
	CancelledAt    time.Time `json:"cancelled_at"`
	PaidAt         time.Time `json:"paid_at"`
}

// BookingCache handles booking snapshots in Redis.
type BookingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBookingCache creates a new BookingCache. A non-positive ttl falls back
// to DefaultBookingCacheTTL.
func NewBookingCache(client *redis.Client, ttl time.Duration) *BookingCache {
	if ttl <= 0 {
		ttl = DefaultBookingCacheTTL
	}
	return &BookingCache{client: client, ttl: ttl}
}

// Get retrieves a booking from cache. found is false on a miss. A deleted
// booking yields found == true with a nil booking.
func (c *BookingCache) Get(ctx context.Context, id string) (*domain.Booking, bool, error) {
	fields, err := c.client.HGetAll(ctx, bookingCachePrefix+id).Result()
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	if v, _ := strconv.ParseInt(fields["v"], 10, 64); v == tombstoneVersion {
		return nil, true, nil
	}

	var cached CachedBooking
	if err := json.Unmarshal([]byte(fields["d"]), &cached); err != nil {
		// Treat a corrupt entry as a miss.
		return nil, false, nil
	}
	return cached.toDomain(), true, nil
}

// Put stores b unless the cache already holds the same or a newer version.
func (c *BookingCache) Put(ctx context.Context, b *domain.Booking) error {
	data, err := json.Marshal(fromDomain(b))
	if err != nil {
		return err
	}
	return putIfNewer.Run(ctx, c.client,
		[]string{bookingCachePrefix + b.ID},
		b.Version, data, c.ttl.Milliseconds(),
	).Err()
}

// Evict marks a booking as deleted until the entry expires.
func (c *BookingCache) Evict(ctx context.Context, id string) error {
	key := bookingCachePrefix + id
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, "v", strconv.FormatInt(tombstoneVersion, 10), "d", "")
	pipe.PExpire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func fromDomain(b *domain.Booking) *CachedBooking {
	return &CachedBooking{
		ID:             b.ID,
		CustomerID:     b.CustomerID,
		CarID:          b.CarID,
		DriverID:       b.DriverID,
		PickupLocation: b.PickupLocation,
		PickupTime:     b.PickupTime,
		DistanceKm:     b.DistanceKm,
		RatePerKm:      b.RatePerKm,
		TotalFee:       b.TotalFee,
		Status:         string(b.Status),
		PaymentStatus:  string(b.PaymentStatus),
		Version:        b.Version,
		CancelReason:   b.CancelReason,
		CancelledBy:    b.CancelledBy,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
		ConfirmedAt:    b.ConfirmedAt,
		CompletedAt:    b.CompletedAt,
		CancelledAt:    b.CancelledAt,
		PaidAt:         b.PaidAt,
	}
}

func (c *CachedBooking) toDomain() *domain.Booking {
	return &domain.Booking{
		ID:             c.ID,
		CustomerID:     c.CustomerID,
		CarID:          c.CarID,
		DriverID:       c.DriverID,
		PickupLocation: c.PickupLocation,
		PickupTime:     c.PickupTime,
		DistanceKm:     c.DistanceKm,
		RatePerKm:      c.RatePerKm,
		TotalFee:       c.TotalFee,
		Status:         domain.BookingStatus(c.Status),
		PaymentStatus:  domain.PaymentStatus(c.PaymentStatus),
		Version:        c.Version,
		CancelReason:   c.CancelReason,
		CancelledBy:    c.CancelledBy,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		ConfirmedAt:    c.ConfirmedAt,
		CompletedAt:    c.CompletedAt,
		CancelledAt:    c.CancelledAt,
		PaidAt:         c.PaidAt,
	}
}
