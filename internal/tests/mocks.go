package tests

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"rental/internal/domain"
	"rental/internal/events"
	"rental/internal/repository/memory"
	"rental/internal/service"
)

// ──────────────────────────────────────────────
// MOCK BOOKING CACHE
// ──────────────────────────────────────────────

// MockBookingCache is an in-process stand-in for redis.BookingCache with
// the same version guard and tombstone behaviour.
type MockBookingCache struct {
	mu       sync.Mutex
	bookings map[string]*domain.Booking
	deleted  map[string]bool

	// Counters for verification
	GetCallCount   int32
	PutCallCount   int32
	EvictCallCount int32

	// Error injection
	GetError   error
	PutError   error
	EvictError error
}

// NewMockBookingCache creates a new mock booking cache.
func NewMockBookingCache() *MockBookingCache {
	return &MockBookingCache{
		bookings: make(map[string]*domain.Booking),
		deleted:  make(map[string]bool),
	}
}

func (m *MockBookingCache) Get(ctx context.Context, id string) (*domain.Booking, bool, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	if m.GetError != nil {
		return nil, false, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted[id] {
		return nil, true, nil
	}
	b, ok := m.bookings[id]
	if !ok {
		return nil, false, nil
	}
	return b.Clone(), true, nil
}

func (m *MockBookingCache) Put(ctx context.Context, b *domain.Booking) error {
	atomic.AddInt32(&m.PutCallCount, 1)
	if m.PutError != nil {
		return m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted[b.ID] {
		return nil
	}
	if cur, ok := m.bookings[b.ID]; ok && cur.Version >= b.Version {
		return nil
	}
	m.bookings[b.ID] = b.Clone()
	return nil
}

func (m *MockBookingCache) Evict(ctx context.Context, id string) error {
	atomic.AddInt32(&m.EvictCallCount, 1)
	if m.EvictError != nil {
		return m.EvictError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bookings, id)
	m.deleted[id] = true
	return nil
}

// Cached returns the cached snapshot for test assertions.
func (m *MockBookingCache) Cached(id string) *domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookings[id].Clone()
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of redis.LockStore.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]time.Time

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]time.Time),
	}
}

func (m *MockLockStore) AcquirePaymentLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	if m.ForceAcquireFailure {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if expiry, exists := m.locks[bookingID]; exists && time.Now().Before(expiry) {
		return false, nil // Lock still held.
	}
	m.locks[bookingID] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockLockStore) ReleasePaymentLock(ctx context.Context, bookingID string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, bookingID)
	return nil
}

// IsLocked checks if a booking payment is locked (for test assertions).
func (m *MockLockStore) IsLocked(bookingID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, exists := m.locks[bookingID]
	return exists && time.Now().Before(expiry)
}

// ──────────────────────────────────────────────
// MOCK PAYMENT GATEWAY
// ──────────────────────────────────────────────

// MockGateway is a controllable payment gateway.
type MockGateway struct {
	mu sync.Mutex

	// Control behavior
	ShouldDecline bool
	FailError     error
	RefundError   error

	// OnCharge runs before the first charge is recorded, outside the lock.
	OnCharge func(ctx context.Context)

	// Counters
	ChargeCallCount int32
	Keys            []string
	Amounts         []float64
	Refunds         []string
}

// NewMockGateway creates a new mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) Charge(ctx context.Context, key string, amount float64) (bool, error) {
	if atomic.AddInt32(&m.ChargeCallCount, 1) == 1 && m.OnCharge != nil {
		m.OnCharge(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailError != nil {
		return false, m.FailError
	}
	if m.ShouldDecline {
		return false, nil
	}
	m.Keys = append(m.Keys, key)
	m.Amounts = append(m.Amounts, amount)
	return true, nil
}

func (m *MockGateway) Refund(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RefundError != nil {
		return m.RefundError
	}
	m.Refunds = append(m.Refunds, key)
	return nil
}

// SetDecline configures the gateway to decline.
func (m *MockGateway) SetDecline(decline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldDecline = decline
}

// ──────────────────────────────────────────────
// MOCK PUBLISHER
// ──────────────────────────────────────────────

// PublishedEvent is one recorded publish call.
type PublishedEvent struct {
	Subject string
	Event   events.BookingEvent
}

// MockPublisher records every published event.
type MockPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent

	// Error injection
	PublishError error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishError != nil {
		return m.PublishError
	}
	evt, _ := data.(events.BookingEvent)
	m.events = append(m.events, PublishedEvent{Subject: subject, Event: evt})
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// Subjects returns the published subjects in order.
func (m *MockPublisher) Subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Subject
	}
	return out
}

// Last returns the most recent event.
func (m *MockPublisher) Last() (PublishedEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return PublishedEvent{}, false
	}
	return m.events[len(m.events)-1], true
}

// ──────────────────────────────────────────────
// FIXTURE
// ──────────────────────────────────────────────

var (
	customer      = domain.Actor{ID: "cust-1", Role: domain.RoleCustomer}
	otherCustomer = domain.Actor{ID: "cust-2", Role: domain.RoleCustomer}
	driver        = domain.Actor{ID: "drv-1", Role: domain.RoleDriver}
	otherDriver   = domain.Actor{ID: "drv-2", Role: domain.RoleDriver}
	admin         = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

// fixture wires a BookingService over in-memory stores and mocks.
type fixture struct {
	store     *memory.BookingRepository
	vehicles  *memory.VehicleRepository
	users     *memory.UserRepository
	cache     *MockBookingCache
	locks     *MockLockStore
	gateway   *MockGateway
	publisher *MockPublisher
	engine    *service.LifecycleEngine
	svc       *service.BookingService
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newFixture(opts ...service.EngineOption) *fixture {
	f := &fixture{
		store: memory.NewBookingRepository(),
		vehicles: memory.NewVehicleRepository(
			&domain.Vehicle{ID: "car-1", Model: "Sedan", RatePerKm: 2.5},
			&domain.Vehicle{ID: "car-2", Model: "Van", RatePerKm: 1.2},
		),
		users: memory.NewUserRepository(
			&domain.User{ID: customer.ID, Name: "Ana", Role: domain.RoleCustomer},
			&domain.User{ID: otherCustomer.ID, Name: "Ben", Role: domain.RoleCustomer},
			&domain.User{ID: driver.ID, Name: "Chidi", Role: domain.RoleDriver},
			&domain.User{ID: otherDriver.ID, Name: "Dara", Role: domain.RoleDriver},
			&domain.User{ID: admin.ID, Name: "Eve", Role: domain.RoleAdmin},
		),
		cache:     NewMockBookingCache(),
		locks:     NewMockLockStore(),
		gateway:   NewMockGateway(),
		publisher: NewMockPublisher(),
	}

	log := quietLogger()
	engineOpts := append([]service.EngineOption{
		service.WithUserDirectory(f.users),
		service.WithLogger(log),
	}, opts...)
	f.engine = service.NewLifecycleEngine(f.store, f.vehicles, engineOpts...)

	queries := service.NewQueryService(f.store, f.cache, log)
	notifications := service.NewNotificationService(f.publisher, log)
	f.svc = service.NewBookingService(f.store, f.engine, queries, f.gateway, notifications, f.cache, f.locks, log)
	return f
}

// book creates a booking for customer with driver on car-1 over distance km.
func (f *fixture) book(distance float64) *domain.Booking {
	b, err := f.svc.CreateBooking(context.Background(), service.CreateBookingRequest{
		Actor:          customer,
		CarID:          "car-1",
		DriverID:       driver.ID,
		PickupLocation: "12 Harbour Rd",
		PickupTime:     "2025-06-01 09:00",
		DistanceKm:     &distance,
	})
	if err != nil {
		panic("fixture booking: " + err.Error())
	}
	return b
}

// ──────────────────────────────────────────────
// HELPER ERRORS
// ──────────────────────────────────────────────

var (
	ErrMockGatewayDown = errors.New("mock: gateway unavailable")
	ErrMockRedisDown   = errors.New("mock: redis unavailable")
)
