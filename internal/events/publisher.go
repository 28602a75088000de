package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Booking lifecycle subjects.
const (
	BookingCreated    = "booking.created"
	BookingTripEdited = "booking.trip_edited"
	BookingConfirmed  = "booking.confirmed"
	BookingCompleted  = "booking.completed"
	BookingCancelled  = "booking.cancelled"
	BookingPaid       = "booking.paid"
	BookingDeleted    = "booking.deleted"
)

// Publisher delivers lifecycle events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

// BookingEvent is the payload for every booking subject.
type BookingEvent struct {
	BookingID     string    `json:"booking_id"`
	CustomerID    string    `json:"customer_id"`
	DriverID      string    `json:"driver_id"`
	FromStatus    string    `json:"from_status,omitempty"`
	ToStatus      string    `json:"to_status"`
	PaymentStatus string    `json:"payment_status"`
	Version       int64     `json:"version"`
	ActorID       string    `json:"actor_id"`
	ActorRole     string    `json:"actor_role"`
	TotalFee      float64   `json:"total_fee"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NATSPublisher publishes JSON events on a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
	log  logrus.FieldLogger
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string, log logrus.FieldLogger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("rental-bookings"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSPublisher{conn: conn, log: log}, nil
}

// Publish marshals data as JSON and publishes it on subject.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	p.log.WithField("subject", subject).Debug("publishing event")

	return p.conn.Publish(subject, payload)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

// NopPublisher discards every event. Used when NATS is disabled.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = NopPublisher{}
)
