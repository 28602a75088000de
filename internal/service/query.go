package service

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"rental/internal/domain"
	"rental/internal/redis"
	"rental/internal/repository"
)

// BookingFilter narrows a booking list. Zero values match everything.
type BookingFilter struct {
	Status     domain.BookingStatus
	OnlyUnpaid bool
}

func (f BookingFilter) match(b *domain.Booking) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.OnlyUnpaid && b.PaymentStatus != domain.PaymentStatusUnpaid {
		return false
	}
	return true
}

func (f BookingFilter) validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return invalidf("unknown status %q", f.Status)
	}
	return nil
}

// DriverBookings groups a driver's bookings the way the driver works through them.
type DriverBookings struct {
	AwaitingConfirmation []*domain.Booking
	Active               []*domain.Booking
	History              []*domain.Booking
}

// QueryService serves read-only booking projections.
type QueryService struct {
	store repository.BookingRepository
	cache redis.BookingCacheInterface
	log   logrus.FieldLogger

	// stale holds ids whose last cache write or evict failed. Reads for
	// them skip the cache until a repair succeeds.
	stale sync.Map
}

// NewQueryService creates a new QueryService. cache may be nil.
func NewQueryService(store repository.BookingRepository, cache redis.BookingCacheInterface, log logrus.FieldLogger) *QueryService {
	return &QueryService{store: store, cache: cache, log: log}
}

// Get returns a booking visible to actor.
func (s *QueryService) Get(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	if actor.ID == "" || !actor.Role.Valid() {
		return nil, bookingErr("get", id, -1, unauthorizedf("missing or malformed actor"))
	}

	b, err := s.load(ctx, id)
	if err != nil {
		return nil, bookingErr("get", id, -1, err)
	}
	if err := checkParticipation(b, actor); err != nil {
		return nil, bookingErr("get", id, b.Version, err)
	}
	return b, nil
}

// ForCustomer lists a customer's bookings, newest first.
func (s *QueryService) ForCustomer(ctx context.Context, actor domain.Actor, customerID string, filter BookingFilter) ([]*domain.Booking, error) {
	if !(actor.Role == domain.RoleAdmin || (actor.Role == domain.RoleCustomer && actor.ID == customerID)) || actor.ID == "" {
		return nil, unauthorizedf("actor %s may not list bookings of customer %s", actor.ID, customerID)
	}
	if err := filter.validate(); err != nil {
		return nil, err
	}

	all, err := s.store.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return applyFilter(all, filter), nil
}

// ActiveForCustomer lists bookings that are under way and still unpaid.
func (s *QueryService) ActiveForCustomer(ctx context.Context, actor domain.Actor, customerID string) ([]*domain.Booking, error) {
	return s.ForCustomer(ctx, actor, customerID, BookingFilter{
		Status:     domain.BookingStatusInProgress,
		OnlyUnpaid: true,
	})
}

// ForDriver returns a driver's bookings grouped by stage.
func (s *QueryService) ForDriver(ctx context.Context, actor domain.Actor, driverID string) (*DriverBookings, error) {
	if !(actor.Role == domain.RoleAdmin || (actor.Role == domain.RoleDriver && actor.ID == driverID)) || actor.ID == "" {
		return nil, unauthorizedf("actor %s may not list bookings of driver %s", actor.ID, driverID)
	}

	all, err := s.store.ListByDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}

	out := &DriverBookings{
		AwaitingConfirmation: make([]*domain.Booking, 0),
		Active:               make([]*domain.Booking, 0),
		History:              make([]*domain.Booking, 0),
	}
	for _, b := range all {
		switch b.Status {
		case domain.BookingStatusRequested:
			out.AwaitingConfirmation = append(out.AwaitingConfirmation, b)
		case domain.BookingStatusInProgress:
			out.Active = append(out.Active, b)
		default:
			out.History = append(out.History, b)
		}
	}
	return out, nil
}

// All lists every booking. Admin only.
func (s *QueryService) All(ctx context.Context, actor domain.Actor, filter BookingFilter) ([]*domain.Booking, error) {
	if actor.Role != domain.RoleAdmin || actor.ID == "" {
		return nil, unauthorizedf("only admins list all bookings")
	}
	if err := filter.validate(); err != nil {
		return nil, err
	}

	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return applyFilter(all, filter), nil
}

// load reads through the cache when one is configured.
func (s *QueryService) load(ctx context.Context, id string) (*domain.Booking, error) {
	_, stale := s.stale.Load(id)
	if s.cache != nil && !stale {
		b, found, err := s.cache.Get(ctx, id)
		switch {
		case err != nil:
			s.log.WithError(err).WithField("booking_id", id).Warn("booking cache read failed")
		case found && b == nil:
			return nil, ErrNotFound
		case found:
			return b, nil
		}
	}

	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		if stale && errors.Is(err, ErrNotFound) {
			s.repair(ctx, id, func() error { return s.cache.Evict(ctx, id) })
		}
		return nil, err
	}

	if s.cache != nil {
		s.repair(ctx, id, func() error { return s.cache.Put(ctx, b) })
	}
	return b, nil
}

// markStale routes reads for id around the cache after a failed write.
func (s *QueryService) markStale(id string) {
	if s.cache != nil {
		s.stale.Store(id, struct{}{})
	}
}

func (s *QueryService) repair(ctx context.Context, id string, write func() error) {
	if s.cache == nil {
		return
	}
	if err := write(); err != nil {
		s.log.WithError(err).WithField("booking_id", id).Warn("booking cache fill failed")
		return
	}
	s.stale.Delete(id)
}

func applyFilter(bookings []*domain.Booking, f BookingFilter) []*domain.Booking {
	out := make([]*domain.Booking, 0, len(bookings))
	for _, b := range bookings {
		if f.match(b) {
			out = append(out, b)
		}
	}
	return out
}
