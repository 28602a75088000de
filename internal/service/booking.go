package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"rental/internal/domain"
	"rental/internal/redis"
	"rental/internal/repository"
)

const paymentLockTTL = 30 * time.Second

// BookingService is the entry point for every booking intent.
type BookingService struct {
	store         repository.BookingRepository
	engine        *LifecycleEngine
	queries       *QueryService
	gateway       PaymentGateway
	notifications *NotificationService
	cache         redis.BookingCacheInterface
	locks         redis.LockStoreInterface
	log           logrus.FieldLogger
}

// NewBookingService creates a new BookingService. cache and locks may be nil.
func NewBookingService(
	store repository.BookingRepository,
	engine *LifecycleEngine,
	queries *QueryService,
	gateway PaymentGateway,
	notifications *NotificationService,
	cache redis.BookingCacheInterface,
	locks redis.LockStoreInterface,
	log logrus.FieldLogger,
) *BookingService {
	return &BookingService{
		store:         store,
		engine:        engine,
		queries:       queries,
		gateway:       gateway,
		notifications: notifications,
		cache:         cache,
		locks:         locks,
		log:           log,
	}
}

// CreateBookingRequest contains the parameters for creating a booking.
type CreateBookingRequest struct {
	Actor          domain.Actor
	CarID          string
	DriverID       string
	PickupLocation string
	PickupTime     string
	DistanceKm     *float64
}

// EditTripRequest contains the trip fields a customer wants to change.
type EditTripRequest struct {
	Actor           domain.Actor
	ID              string
	ExpectedVersion int64
	DistanceKm      *float64
	PickupLocation  *string
	PickupTime      *string
}

// TransitionRequest identifies a booking version for a status or payment change.
type TransitionRequest struct {
	Actor           domain.Actor
	ID              string
	ExpectedVersion int64
}

// CancelBookingRequest contains the parameters for cancelling a booking.
type CancelBookingRequest struct {
	Actor           domain.Actor
	ID              string
	ExpectedVersion int64
	Reason          string
}

// DeleteBookingRequest identifies a booking to remove.
type DeleteBookingRequest struct {
	Actor domain.Actor
	ID    string
}

// CreateBooking creates a new booking for the acting customer.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*domain.Booking, error) {
	b, err := s.engine.Create(ctx, req.Actor, CreateParams{
		CarID:          req.CarID,
		DriverID:       req.DriverID,
		PickupLocation: req.PickupLocation,
		PickupTime:     req.PickupTime,
		DistanceKm:     req.DistanceKm,
	})
	if err != nil {
		return nil, err
	}

	s.putCache(ctx, b)
	if err := s.notifications.NotifyCreated(ctx, b, req.Actor); err != nil {
		s.logPublishFailure(err, b)
	}
	return b, nil
}

// EditTrip changes trip details of a REQUESTED booking.
func (s *BookingService) EditTrip(ctx context.Context, req EditTripRequest) (*domain.Booking, error) {
	b, err := s.engine.EditTrip(ctx, req.Actor, req.ID, req.ExpectedVersion, TripChanges{
		DistanceKm:     req.DistanceKm,
		PickupLocation: req.PickupLocation,
		PickupTime:     req.PickupTime,
	})
	return s.afterTransition(ctx, EventEditTrip, req.Actor, err == nil, b, err)
}

// ConfirmBooking lets the assigned driver accept a booking.
func (s *BookingService) ConfirmBooking(ctx context.Context, req TransitionRequest) (*domain.Booking, error) {
	b, err := s.engine.Confirm(ctx, req.Actor, req.ID, req.ExpectedVersion)
	return s.afterTransition(ctx, EventConfirm, req.Actor, err == nil, b, err)
}

// CompleteBooking lets the assigned driver finish a booking.
func (s *BookingService) CompleteBooking(ctx context.Context, req TransitionRequest) (*domain.Booking, error) {
	b, err := s.engine.Complete(ctx, req.Actor, req.ID, req.ExpectedVersion)
	return s.afterTransition(ctx, EventComplete, req.Actor, err == nil, b, err)
}

// CancelBooking cancels a booking.
func (s *BookingService) CancelBooking(ctx context.Context, req CancelBookingRequest) (*domain.Booking, error) {
	b, changed, err := s.engine.cancel(ctx, req.Actor, req.ID, req.ExpectedVersion, req.Reason)
	return s.afterTransition(ctx, EventCancel, req.Actor, changed, b, err)
}

// MarkPaid charges the booking fee and records the payment.
func (s *BookingService) MarkPaid(ctx context.Context, req TransitionRequest) (*domain.Booking, error) {
	const op = "mark paid"

	if err := s.engine.checkActor(ctx, req.Actor); err != nil {
		return nil, bookingErr(op, req.ID, -1, err)
	}

	current, err := s.store.GetByID(ctx, req.ID)
	if err != nil {
		return nil, bookingErr(op, req.ID, -1, err)
	}
	if current.Version != req.ExpectedVersion {
		return current, bookingErr(op, req.ID, current.Version, ErrVersionConflict)
	}
	if err := CheckTransition(current, req.Actor, EventMarkPaid); err != nil {
		return nil, bookingErr(op, req.ID, current.Version, err)
	}
	if current.PaymentStatus == domain.PaymentStatusPaid {
		return nil, bookingErr(op, req.ID, current.Version, illegalf("booking already paid"))
	}

	if s.locks != nil {
		acquired, err := s.locks.AcquirePaymentLock(ctx, req.ID, paymentLockTTL)
		switch {
		case err != nil:
			s.log.WithError(err).WithField("booking_id", req.ID).Warn("payment lock unavailable")
		case !acquired:
			return current, bookingErr(op, req.ID, current.Version, ErrVersionConflict)
		default:
			defer func() {
				if err := s.locks.ReleasePaymentLock(context.WithoutCancel(ctx), req.ID); err != nil {
					s.log.WithError(err).WithField("booking_id", req.ID).Warn("payment lock release failed")
				}
			}()
		}
	}

	key := chargeKey(current.ID, current.Version)
	charged := false
	if current.TotalFee > 0 {
		approved, err := s.gateway.Charge(ctx, key, current.TotalFee)
		if err != nil {
			return nil, bookingErr(op, req.ID, current.Version, err)
		}
		if !approved {
			s.log.WithFields(logrus.Fields{
				"booking_id": current.ID,
				"amount":     RoundFee(current.TotalFee),
			}).Warn("payment declined")
			return nil, bookingErr(op, req.ID, current.Version, ErrPaymentDeclined)
		}
		charged = true
	}

	b, err := s.engine.MarkPaid(ctx, req.Actor, req.ID, req.ExpectedVersion)
	if err != nil && charged && !s.settledBy(ctx, b, current) {
		// The booking moved on (an edit repriced it, or it was cancelled)
		// between the charge and the commit.
		s.refund(ctx, key, current)
	}
	return s.afterTransition(ctx, EventMarkPaid, req.Actor, err == nil, b, err)
}

// settledBy reports whether a concurrent payment at the same version already
// committed, in which case it shares this charge key and the charge stands.
func (s *BookingService) settledBy(ctx context.Context, latest, charged *domain.Booking) bool {
	if latest == nil {
		var err error
		latest, err = s.store.GetByID(context.WithoutCancel(ctx), charged.ID)
		if err != nil {
			return false
		}
	}
	return latest.PaymentStatus == domain.PaymentStatusPaid &&
		RoundFee(latest.TotalFee) == RoundFee(charged.TotalFee)
}

func (s *BookingService) refund(ctx context.Context, key string, b *domain.Booking) {
	fields := logrus.Fields{
		"booking_id": b.ID,
		"charge_key": key,
		"amount":     RoundFee(b.TotalFee),
	}
	if err := s.gateway.Refund(context.WithoutCancel(ctx), key); err != nil {
		s.log.WithError(err).WithFields(fields).Error("refund after failed payment commit")
		return
	}
	s.log.WithFields(fields).Info("charge refunded after failed payment commit")
}

// DeleteBooking removes a booking in any state. Admin only.
func (s *BookingService) DeleteBooking(ctx context.Context, req DeleteBookingRequest) (*domain.Booking, error) {
	b, err := s.engine.Delete(ctx, req.Actor, req.ID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Evict(ctx, req.ID); err != nil {
			s.log.WithError(err).WithField("booking_id", req.ID).Warn("booking cache evict failed")
			s.queries.markStale(req.ID)
		}
	}
	if err := s.notifications.NotifyDeleted(ctx, b, req.Actor); err != nil {
		s.logPublishFailure(err, b)
	}
	return b, nil
}

// GetBooking returns a booking visible to actor.
func (s *BookingService) GetBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return s.queries.Get(ctx, actor, id)
}

// ListBookingsForCustomer lists a customer's bookings.
func (s *BookingService) ListBookingsForCustomer(ctx context.Context, actor domain.Actor, customerID string, filter BookingFilter) ([]*domain.Booking, error) {
	return s.queries.ForCustomer(ctx, actor, customerID, filter)
}

// ListActiveBookingsForCustomer lists a customer's bookings that are under
// way and still unpaid, the ones the payment screen offers.
func (s *BookingService) ListActiveBookingsForCustomer(ctx context.Context, actor domain.Actor, customerID string) ([]*domain.Booking, error) {
	return s.queries.ActiveForCustomer(ctx, actor, customerID)
}

// ListBookingsForDriver lists a driver's bookings grouped by stage.
func (s *BookingService) ListBookingsForDriver(ctx context.Context, actor domain.Actor, driverID string) (*DriverBookings, error) {
	return s.queries.ForDriver(ctx, actor, driverID)
}

// ListAllBookings lists every booking. Admin only.
func (s *BookingService) ListAllBookings(ctx context.Context, actor domain.Actor, filter BookingFilter) ([]*domain.Booking, error) {
	return s.queries.All(ctx, actor, filter)
}

// afterTransition refreshes the cache and publishes an event for a committed
// change. An unchanged result (idempotent cancel) publishes nothing.
func (s *BookingService) afterTransition(ctx context.Context, event Event, actor domain.Actor, changed bool, b *domain.Booking, err error) (*domain.Booking, error) {
	if err != nil {
		return b, err
	}
	if !changed {
		return b, nil
	}

	s.putCache(ctx, b)

	from := previousStatus(event, b)
	if err := s.notifications.NotifyTransition(ctx, event, from, b, actor); err != nil {
		s.logPublishFailure(err, b)
	}
	return b, nil
}

func (s *BookingService) putCache(ctx context.Context, b *domain.Booking) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, b); err != nil {
		s.log.WithError(err).WithField("booking_id", b.ID).Warn("booking cache write failed")
		s.queries.markStale(b.ID)
	}
}

func (s *BookingService) logPublishFailure(err error, b *domain.Booking) {
	s.log.WithError(err).WithFields(logrus.Fields{
		"booking_id": b.ID,
		"version":    b.Version,
	}).Warn("booking event publish failed")
}

// previousStatus derives the status b held before event was applied.
func previousStatus(event Event, b *domain.Booking) domain.BookingStatus {
	switch event {
	case EventConfirm:
		return domain.BookingStatusRequested
	case EventComplete:
		return domain.BookingStatusInProgress
	case EventCancel:
		if !b.ConfirmedAt.IsZero() {
			return domain.BookingStatusInProgress
		}
		return domain.BookingStatusRequested
	}
	return b.Status
}
