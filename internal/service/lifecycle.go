package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rental/internal/domain"
	"rental/internal/repository"
)

// Event is a requested lifecycle change.
type Event string

const (
	EventEditTrip Event = "EDIT_TRIP"
	EventConfirm  Event = "CONFIRM"
	EventComplete Event = "COMPLETE"
	EventCancel   Event = "CANCEL"
	EventMarkPaid Event = "MARK_PAID"
)

// Events lists every event the engine understands.
var Events = []Event{EventEditTrip, EventConfirm, EventComplete, EventCancel, EventMarkPaid}

type roleSet []domain.Role

func (s roleSet) has(r domain.Role) bool {
	for _, x := range s {
		if x == r {
			return true
		}
	}
	return false
}

// transition is one row of the state table. An empty to leaves the status unchanged.
type transition struct {
	to    domain.BookingStatus
	roles roleSet
}

var transitions = map[domain.BookingStatus]map[Event]transition{
	domain.BookingStatusRequested: {
		EventEditTrip: {to: domain.BookingStatusRequested, roles: roleSet{domain.RoleCustomer}},
		EventConfirm:  {to: domain.BookingStatusInProgress, roles: roleSet{domain.RoleDriver}},
		EventCancel:   {to: domain.BookingStatusCancelled, roles: roleSet{domain.RoleCustomer, domain.RoleDriver, domain.RoleAdmin}},
		EventMarkPaid: {roles: roleSet{domain.RoleCustomer, domain.RoleAdmin}},
	},
	domain.BookingStatusInProgress: {
		EventComplete: {to: domain.BookingStatusCompleted, roles: roleSet{domain.RoleDriver}},
		EventCancel:   {to: domain.BookingStatusCancelled, roles: roleSet{domain.RoleDriver, domain.RoleAdmin}},
		EventMarkPaid: {roles: roleSet{domain.RoleCustomer, domain.RoleAdmin}},
	},
	domain.BookingStatusCompleted: {
		EventMarkPaid: {roles: roleSet{domain.RoleCustomer, domain.RoleAdmin}},
	},
}

// eventRoles lists which roles may ever issue an event, regardless of status.
var eventRoles = map[Event]roleSet{
	EventEditTrip: {domain.RoleCustomer},
	EventConfirm:  {domain.RoleDriver},
	EventComplete: {domain.RoleDriver},
	EventCancel:   {domain.RoleCustomer, domain.RoleDriver, domain.RoleAdmin},
	EventMarkPaid: {domain.RoleCustomer, domain.RoleAdmin},
}

// errUnchanged aborts a mutation whose outcome already holds.
var errUnchanged = errors.New("booking unchanged")

// CheckTransition reports whether actor may apply event to b in its current
// state. It does not check event-specific preconditions.
func CheckTransition(b *domain.Booking, actor domain.Actor, event Event) error {
	if err := checkParticipation(b, actor); err != nil {
		return err
	}
	if !eventRoles[event].has(actor.Role) {
		return unauthorizedf("%s may not %s", actor.Role, strings.ToLower(string(event)))
	}
	_, err := lookupTransition(b.Status, event, actor.Role)
	return err
}

func lookupTransition(status domain.BookingStatus, event Event, role domain.Role) (transition, error) {
	row, ok := transitions[status][event]
	if !ok {
		return transition{}, illegalf("%s not allowed from %s", strings.ToLower(string(event)), status)
	}
	if !row.roles.has(role) {
		return transition{}, unauthorizedf("%s may not %s a %s booking", role, strings.ToLower(string(event)), status)
	}
	return row, nil
}

func checkParticipation(b *domain.Booking, actor domain.Actor) error {
	switch actor.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleCustomer:
		if b.CustomerID == actor.ID {
			return nil
		}
	case domain.RoleDriver:
		if b.DriverID == actor.ID {
			return nil
		}
	}
	return unauthorizedf("actor %s is not a participant", actor.ID)
}

// CreateParams holds the customer-supplied fields of a new booking.
type CreateParams struct {
	CarID          string
	DriverID       string
	PickupLocation string
	PickupTime     string
	DistanceKm     *float64
}

// TripChanges holds the trip fields a customer may edit. Nil means unchanged.
type TripChanges struct {
	DistanceKm     *float64
	PickupLocation *string
	PickupTime     *string
}

// EngineOption configures a LifecycleEngine.
type EngineOption func(*LifecycleEngine)

// WithUserDirectory verifies actors and drivers against users.
func WithUserDirectory(users repository.UserRepository) EngineOption {
	return func(e *LifecycleEngine) { e.users = users }
}

// WithLogger sets the engine logger.
func WithLogger(log logrus.FieldLogger) EngineOption {
	return func(e *LifecycleEngine) { e.log = log }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *LifecycleEngine) { e.now = now }
}

// WithIDGenerator overrides the booking ID generator.
func WithIDGenerator(newID func() string) EngineOption {
	return func(e *LifecycleEngine) { e.newID = newID }
}

// WithCancelRetries makes Cancel retry up to n times on a version conflict.
func WithCancelRetries(n int) EngineOption {
	return func(e *LifecycleEngine) {
		if n > 0 {
			e.cancelRetries = n
		}
	}
}

// LifecycleEngine validates and applies booking transitions through the store.
type LifecycleEngine struct {
	store         repository.BookingRepository
	vehicles      repository.VehicleRepository
	users         repository.UserRepository
	log           logrus.FieldLogger
	now           func() time.Time
	newID         func() string
	cancelRetries int
}

// NewLifecycleEngine creates a new LifecycleEngine.
func NewLifecycleEngine(store repository.BookingRepository, vehicles repository.VehicleRepository, opts ...EngineOption) *LifecycleEngine {
	e := &LifecycleEngine{
		store:    store,
		vehicles: vehicles,
		log:      logrus.StandardLogger(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create validates p and stores a new REQUESTED booking owned by actor.
func (e *LifecycleEngine) Create(ctx context.Context, actor domain.Actor, p CreateParams) (*domain.Booking, error) {
	if err := e.checkActor(ctx, actor); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleCustomer {
		return nil, unauthorizedf("only customers create bookings")
	}

	location := strings.TrimSpace(p.PickupLocation)
	if location == "" {
		return nil, invalidf("pickup location is required")
	}
	pickupTime := strings.TrimSpace(p.PickupTime)
	if pickupTime == "" {
		return nil, invalidf("pickup time is required")
	}
	if p.CarID == "" {
		return nil, invalidf("car id is required")
	}
	if p.DriverID == "" {
		return nil, invalidf("driver id is required")
	}
	if p.DistanceKm == nil {
		return nil, invalidf("distance is required")
	}
	distance := *p.DistanceKm

	vehicle, err := e.vehicles.GetByID(ctx, p.CarID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalidf("unknown car %s", p.CarID)
		}
		return nil, err
	}

	if e.users != nil {
		driver, err := e.users.GetByID(ctx, p.DriverID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, invalidf("unknown driver %s", p.DriverID)
			}
			return nil, err
		}
		if driver.Role != domain.RoleDriver {
			return nil, invalidf("user %s is not a driver", p.DriverID)
		}
	}

	fee, err := ComputeFee(vehicle.RatePerKm, distance)
	if err != nil {
		return nil, err
	}

	now := e.now()
	booking := &domain.Booking{
		ID:             e.newID(),
		CustomerID:     actor.ID,
		CarID:          vehicle.ID,
		DriverID:       p.DriverID,
		PickupLocation: location,
		PickupTime:     pickupTime,
		DistanceKm:     distance,
		RatePerKm:      vehicle.RatePerKm,
		TotalFee:       fee,
		Status:         domain.BookingStatusRequested,
		PaymentStatus:  domain.PaymentStatusUnpaid,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.store.Create(ctx, booking); err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"customer_id": booking.CustomerID,
		"driver_id":   booking.DriverID,
	}).Info("booking created")

	return booking, nil
}

// EditTrip updates trip fields of a REQUESTED booking and recomputes its fee.
func (e *LifecycleEngine) EditTrip(ctx context.Context, actor domain.Actor, id string, expectedVersion int64, ch TripChanges) (*domain.Booking, error) {
	b, _, err := e.apply(ctx, "edit trip", actor, id, expectedVersion, EventEditTrip, func(b *domain.Booking) error {
		if b.PaymentStatus == domain.PaymentStatusPaid {
			return illegalf("trip of a paid booking cannot change")
		}

		changed := false
		if ch.DistanceKm != nil {
			if !validAmount(*ch.DistanceKm) {
				return invalidf("distance must be a finite non-negative number")
			}
			if *ch.DistanceKm != b.DistanceKm {
				b.DistanceKm = *ch.DistanceKm
				changed = true
			}
		}
		if ch.PickupLocation != nil {
			loc := strings.TrimSpace(*ch.PickupLocation)
			if loc == "" {
				return invalidf("pickup location is required")
			}
			if loc != b.PickupLocation {
				b.PickupLocation = loc
				changed = true
			}
		}
		if ch.PickupTime != nil {
			pt := strings.TrimSpace(*ch.PickupTime)
			if pt == "" {
				return invalidf("pickup time is required")
			}
			if pt != b.PickupTime {
				b.PickupTime = pt
				changed = true
			}
		}
		if !changed {
			return invalidf("no trip field changed")
		}

		fee, err := ComputeFee(b.RatePerKm, b.DistanceKm)
		if err != nil {
			return err
		}
		b.TotalFee = fee
		return nil
	})
	return b, err
}

// Confirm moves a REQUESTED booking to IN_PROGRESS.
func (e *LifecycleEngine) Confirm(ctx context.Context, actor domain.Actor, id string, expectedVersion int64) (*domain.Booking, error) {
	b, _, err := e.apply(ctx, "confirm", actor, id, expectedVersion, EventConfirm, func(b *domain.Booking) error {
		b.ConfirmedAt = e.now()
		return nil
	})
	return b, err
}

// Complete moves an IN_PROGRESS booking to COMPLETED.
func (e *LifecycleEngine) Complete(ctx context.Context, actor domain.Actor, id string, expectedVersion int64) (*domain.Booking, error) {
	b, _, err := e.apply(ctx, "complete", actor, id, expectedVersion, EventComplete, func(b *domain.Booking) error {
		b.CompletedAt = e.now()
		return nil
	})
	return b, err
}

// Cancel moves a booking to CANCELLED. Cancelling an already cancelled
// booking returns it unchanged.
func (e *LifecycleEngine) Cancel(ctx context.Context, actor domain.Actor, id string, expectedVersion int64, reason string) (*domain.Booking, error) {
	b, _, err := e.cancel(ctx, actor, id, expectedVersion, reason)
	return b, err
}

// cancel also reports whether this call committed the cancellation.
func (e *LifecycleEngine) cancel(ctx context.Context, actor domain.Actor, id string, expectedVersion int64, reason string) (*domain.Booking, bool, error) {
	reason = strings.TrimSpace(reason)
	change := func(b *domain.Booking) error {
		b.CancelledAt = e.now()
		b.CancelledBy = actor.ID
		b.CancelReason = reason
		return nil
	}

	b, changed, err := e.apply(ctx, "cancel", actor, id, expectedVersion, EventCancel, change)
	for attempt := 0; attempt < e.cancelRetries && errors.Is(err, ErrVersionConflict) && b != nil; attempt++ {
		if b.Status == domain.BookingStatusCancelled {
			return b, false, nil
		}
		e.log.WithFields(logrus.Fields{
			"booking_id": id,
			"version":    b.Version,
			"attempt":    attempt + 1,
		}).Debug("retrying cancel after version conflict")
		b, changed, err = e.apply(ctx, "cancel", actor, id, b.Version, EventCancel, change)
	}
	return b, changed, err
}

// MarkPaid records payment on a non-cancelled, unpaid booking.
func (e *LifecycleEngine) MarkPaid(ctx context.Context, actor domain.Actor, id string, expectedVersion int64) (*domain.Booking, error) {
	b, _, err := e.apply(ctx, "mark paid", actor, id, expectedVersion, EventMarkPaid, func(b *domain.Booking) error {
		if b.PaymentStatus == domain.PaymentStatusPaid {
			return illegalf("booking already paid")
		}
		b.PaymentStatus = domain.PaymentStatusPaid
		b.PaidAt = e.now()
		return nil
	})
	return b, err
}

// Delete removes a booking in any state. Admin only.
func (e *LifecycleEngine) Delete(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	if err := e.checkActor(ctx, actor); err != nil {
		return nil, bookingErr("delete", id, -1, err)
	}
	if actor.Role != domain.RoleAdmin {
		return nil, bookingErr("delete", id, -1, unauthorizedf("only admins delete bookings"))
	}

	current, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, bookingErr("delete", id, -1, err)
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return nil, bookingErr("delete", id, current.Version, err)
	}

	e.log.WithFields(logrus.Fields{
		"booking_id": id,
		"actor_id":   actor.ID,
		"status":     current.Status,
		"version":    current.Version,
	}).Warn("booking deleted by admin")

	return current, nil
}

// apply runs the shared checks for event and then change inside a
// compare-and-apply on the booking.
func (e *LifecycleEngine) apply(ctx context.Context, op string, actor domain.Actor, id string, expectedVersion int64, event Event, change func(*domain.Booking) error) (*domain.Booking, bool, error) {
	if err := e.checkActor(ctx, actor); err != nil {
		return nil, false, bookingErr(op, id, -1, err)
	}

	var seen *domain.Booking
	next, err := e.store.CompareAndApply(ctx, id, expectedVersion, func(b *domain.Booking) (*domain.Booking, error) {
		seen = b.Clone()

		if err := checkParticipation(b, actor); err != nil {
			return nil, err
		}
		if !eventRoles[event].has(actor.Role) {
			return nil, unauthorizedf("%s may not %s", actor.Role, strings.ToLower(string(event)))
		}
		if event == EventCancel && b.Status == domain.BookingStatusCancelled {
			return nil, errUnchanged
		}

		row, err := lookupTransition(b.Status, event, actor.Role)
		if err != nil {
			return nil, err
		}
		if err := change(b); err != nil {
			return nil, err
		}
		if row.to != "" {
			b.Status = row.to
		}
		return b, nil
	})

	switch {
	case err == nil:
		e.log.WithFields(logrus.Fields{
			"booking_id": id,
			"event":      event,
			"status":     next.Status,
			"version":    next.Version,
			"actor_id":   actor.ID,
			"actor_role": actor.Role,
		}).Info("booking transition applied")
		return next, true, nil
	case errors.Is(err, errUnchanged):
		return seen, false, nil
	case errors.Is(err, ErrVersionConflict) && next != nil:
		return next, false, bookingErr(op, id, next.Version, err)
	case seen != nil:
		return nil, false, bookingErr(op, id, seen.Version, err)
	default:
		return nil, false, bookingErr(op, id, -1, err)
	}
}

// checkActor validates the actor shape and, when a directory is configured,
// that the actor exists with the claimed role.
func (e *LifecycleEngine) checkActor(ctx context.Context, actor domain.Actor) error {
	if actor.ID == "" || !actor.Role.Valid() {
		return unauthorizedf("missing or malformed actor")
	}
	if e.users == nil {
		return nil
	}

	u, err := e.users.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return unauthorizedf("unknown actor %s", actor.ID)
		}
		return err
	}
	if u.Role != actor.Role {
		return unauthorizedf("actor %s does not hold role %s", actor.ID, actor.Role)
	}
	return nil
}
