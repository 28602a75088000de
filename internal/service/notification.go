package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"rental/internal/domain"
	"rental/internal/events"
)

// eventSubjects maps a lifecycle event to its publish subject.
var eventSubjects = map[Event]string{
	EventEditTrip: events.BookingTripEdited,
	EventConfirm:  events.BookingConfirmed,
	EventComplete: events.BookingCompleted,
	EventCancel:   events.BookingCancelled,
	EventMarkPaid: events.BookingPaid,
}

// NotificationService announces booking lifecycle changes.
type NotificationService struct {
	publisher events.Publisher
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(publisher events.Publisher, log logrus.FieldLogger) *NotificationService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &NotificationService{publisher: publisher, log: log, now: time.Now}
}

// NotifyCreated announces a new booking to its driver.
func (s *NotificationService) NotifyCreated(ctx context.Context, b *domain.Booking, actor domain.Actor) error {
	return s.send(ctx, events.BookingCreated, "", b, actor)
}

// NotifyTransition announces that event moved a booking from status from.
func (s *NotificationService) NotifyTransition(ctx context.Context, event Event, from domain.BookingStatus, b *domain.Booking, actor domain.Actor) error {
	subject, ok := eventSubjects[event]
	if !ok {
		return nil
	}
	return s.send(ctx, subject, from, b, actor)
}

// NotifyDeleted announces that an admin removed a booking.
func (s *NotificationService) NotifyDeleted(ctx context.Context, b *domain.Booking, actor domain.Actor) error {
	return s.send(ctx, events.BookingDeleted, b.Status, b, actor)
}

func (s *NotificationService) send(ctx context.Context, subject string, from domain.BookingStatus, b *domain.Booking, actor domain.Actor) error {
	evt := events.BookingEvent{
		BookingID:     b.ID,
		CustomerID:    b.CustomerID,
		DriverID:      b.DriverID,
		FromStatus:    string(from),
		ToStatus:      string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		Version:       b.Version,
		ActorID:       actor.ID,
		ActorRole:     string(actor.Role),
		TotalFee:      RoundFee(b.TotalFee),
		Reason:        b.CancelReason,
		OccurredAt:    s.now(),
	}
	if subject == events.BookingDeleted {
		evt.ToStatus = "DELETED"
	}

	s.log.WithFields(logrus.Fields{
		"subject":     subject,
		"booking_id":  b.ID,
		"customer_id": b.CustomerID,
		"driver_id":   b.DriverID,
		"version":     b.Version,
	}).Info("booking notification")

	return s.publisher.Publish(ctx, subject, evt)
}
