package tests

import (
	"context"
	"errors"
	"testing"

	"rental/internal/domain"
	"rental/internal/service"
)

// ──────────────────────────────────────────────
// 6. QUERIES AND PROJECTIONS
// ──────────────────────────────────────────────

func TestQuery_DriverProjection(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	waiting := f.book(1)
	active := f.book(2)
	done := f.book(3)
	dropped := f.book(4)

	mustOK(f.svc.ConfirmBooking(ctx, service.TransitionRequest{Actor: driver, ID: active.ID, ExpectedVersion: 0}))
	mustOK(f.svc.ConfirmBooking(ctx, service.TransitionRequest{Actor: driver, ID: done.ID, ExpectedVersion: 0}))
	mustOK(f.svc.CompleteBooking(ctx, service.TransitionRequest{Actor: driver, ID: done.ID, ExpectedVersion: 1}))
	mustOK(f.svc.CancelBooking(ctx, service.CancelBookingRequest{Actor: customer, ID: dropped.ID, ExpectedVersion: 0}))

	got, err := f.svc.ListBookingsForDriver(ctx, driver, driver.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(got.AwaitingConfirmation) != 1 || got.AwaitingConfirmation[0].ID != waiting.ID {
		t.Errorf("unexpected awaiting list: %v", ids(got.AwaitingConfirmation))
	}
	if len(got.Active) != 1 || got.Active[0].ID != active.ID {
		t.Errorf("unexpected active list: %v", ids(got.Active))
	}
	if len(got.History) != 2 {
		t.Errorf("expected 2 history entries, got %v", ids(got.History))
	}
}

func TestQuery_DriverProjectionIsPrivate(t *testing.T) {
	t.Parallel()
	f := newFixture()

	_, err := f.svc.ListBookingsForDriver(context.Background(), otherDriver, driver.ID)
	if !errors.Is(err, service.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.ListBookingsForDriver(context.Background(), admin, driver.ID); err != nil {
		t.Fatalf("admin list: %v", err)
	}
}

func TestQuery_CustomerFilters(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	unpaidActive := f.book(1)
	paidActive := f.book(2)
	f.book(3)

	mustOK(f.svc.ConfirmBooking(ctx, service.TransitionRequest{Actor: driver, ID: unpaidActive.ID, ExpectedVersion: 0}))
	mustOK(f.svc.ConfirmBooking(ctx, service.TransitionRequest{Actor: driver, ID: paidActive.ID, ExpectedVersion: 0}))
	mustOK(f.svc.MarkPaid(ctx, service.TransitionRequest{Actor: customer, ID: paidActive.ID, ExpectedVersion: 1}))

	all, err := f.svc.ListBookingsForCustomer(ctx, customer, customer.ID, service.BookingFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 bookings, got %d", len(all))
	}

	inProgress, _ := f.svc.ListBookingsForCustomer(ctx, customer, customer.ID, service.BookingFilter{Status: domain.BookingStatusInProgress})
	if len(inProgress) != 2 {
		t.Errorf("expected 2 in progress, got %v", ids(inProgress))
	}

	active, _ := f.svc.ListBookingsForCustomer(ctx, customer, customer.ID, service.BookingFilter{Status: domain.BookingStatusInProgress, OnlyUnpaid: true})
	if len(active) != 1 || active[0].ID != unpaidActive.ID {
		t.Errorf("expected only the unpaid active booking, got %v", ids(active))
	}

	_, err = f.svc.ListBookingsForCustomer(ctx, customer, customer.ID, service.BookingFilter{Status: "LOST"})
	if !errors.Is(err, service.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for unknown status, got %v", err)
	}

	_, err = f.svc.ListBookingsForCustomer(ctx, otherCustomer, customer.ID, service.BookingFilter{})
	if !errors.Is(err, service.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for another customer, got %v", err)
	}
}

func TestQuery_ListAllIsAdminOnly(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	f.book(1)
	f.book(2)

	if _, err := f.svc.ListAllBookings(ctx, customer, service.BookingFilter{}); !errors.Is(err, service.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	all, err := f.svc.ListAllBookings(ctx, admin, service.BookingFilter{Status: domain.BookingStatusRequested})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 bookings, got %d", len(all))
	}
}

func TestQuery_GetVisibility(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	b := f.book(5)

	for _, actor := range []domain.Actor{customer, driver, admin} {
		if _, err := f.svc.GetBooking(ctx, actor, b.ID); err != nil {
			t.Errorf("%s should see the booking: %v", actor.ID, err)
		}
	}
	for _, actor := range []domain.Actor{otherCustomer, otherDriver} {
		if _, err := f.svc.GetBooking(ctx, actor, b.ID); !errors.Is(err, service.ErrUnauthorized) {
			t.Errorf("%s: expected ErrUnauthorized, got %v", actor.ID, err)
		}
	}
}

func TestQuery_CacheFailureFallsBackToStore(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	b := f.book(5)

	f.cache.GetError = ErrMockRedisDown
	f.cache.PutError = ErrMockRedisDown

	got, err := f.svc.GetBooking(ctx, customer, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != b.ID {
		t.Errorf("expected %s, got %s", b.ID, got.ID)
	}

	// Mutations still succeed when the cache is down.
	if _, err := f.svc.ConfirmBooking(ctx, service.TransitionRequest{Actor: driver, ID: b.ID, ExpectedVersion: 0}); err != nil {
		t.Fatalf("confirm with cache down: %v", err)
	}
}

func TestQuery_FailedEvictDoesNotServeDeletedBooking(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	b := f.book(5)

	if _, err := f.svc.GetBooking(ctx, customer, b.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if f.cache.Cached(b.ID) == nil {
		t.Fatal("expected the booking to be cached")
	}

	f.cache.EvictError = ErrMockRedisDown
	if _, err := f.svc.DeleteBooking(ctx, service.DeleteBookingRequest{Actor: admin, ID: b.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := f.svc.GetBooking(ctx, admin, b.ID); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound while the cache is stale, got %v", err)
	}

	// Once the cache recovers, the next read clears the leftover entry.
	f.cache.EvictError = nil
	if _, err := f.svc.GetBooking(ctx, admin, b.ID); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.cache.Cached(b.ID) != nil {
		t.Error("deleted booking still cached after repair")
	}
}

func TestQuery_FailedPutDoesNotServeStaleVersion(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	b := f.book(5)

	f.cache.PutError = ErrMockRedisDown
	mustOK(f.svc.ConfirmBooking(ctx, service.TransitionRequest{Actor: driver, ID: b.ID, ExpectedVersion: 0}))
	if cached := f.cache.Cached(b.ID); cached == nil || cached.Version != 0 {
		t.Fatalf("expected the cache to still hold version 0, got %+v", cached)
	}

	got, err := f.svc.GetBooking(ctx, customer, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 || got.Status != domain.BookingStatusInProgress {
		t.Fatalf("served stale booking: v%d %s", got.Version, got.Status)
	}

	f.cache.PutError = nil
	if _, err := f.svc.GetBooking(ctx, customer, b.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if cached := f.cache.Cached(b.ID); cached == nil || cached.Version != 1 {
		t.Errorf("expected the cache repaired to version 1, got %+v", cached)
	}
}

func TestNotifications_PublishFailureDoesNotFailMutation(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	b := f.book(5)

	f.publisher.PublishError = errors.New("nats down")
	got, err := f.svc.ConfirmBooking(ctx, service.TransitionRequest{Actor: driver, ID: b.ID, ExpectedVersion: 0})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.Status != domain.BookingStatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", got.Status)
	}
}

func TestNotifications_EventPayload(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	created := f.book(3.333)
	last, ok := f.publisher.Last()
	if !ok || last.Subject != "booking.created" {
		t.Fatalf("expected booking.created, got %+v", last)
	}
	if last.Event.TotalFee != 8.33 {
		t.Errorf("expected rounded fee 8.33, got %v", last.Event.TotalFee)
	}

	mustOK(f.svc.ConfirmBooking(ctx, service.TransitionRequest{Actor: driver, ID: created.ID, ExpectedVersion: 0}))
	last, _ = f.publisher.Last()
	if last.Subject != "booking.confirmed" {
		t.Fatalf("expected booking.confirmed, got %s", last.Subject)
	}
	if last.Event.FromStatus != "REQUESTED" || last.Event.ToStatus != "IN_PROGRESS" || last.Event.Version != 1 {
		t.Errorf("unexpected payload: %+v", last.Event)
	}
	if last.Event.ActorID != driver.ID || last.Event.ActorRole != "driver" {
		t.Errorf("unexpected actor in payload: %+v", last.Event)
	}
}

func ids(bookings []*domain.Booking) []string {
	out := make([]string, len(bookings))
	for i, b := range bookings {
		out[i] = b.ID
	}
	return out
}
