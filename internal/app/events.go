package app

import (
	"github.com/sirupsen/logrus"

	"rental/internal/config"
	"rental/internal/events"
)

// NewPublisher connects to NATS when enabled. A disabled or unreachable
// broker yields a NopPublisher so bookings keep working without events.
func NewPublisher(cfg config.NATSConfig, log logrus.FieldLogger) events.Publisher {
	if !cfg.Enabled {
		log.Info("NATS disabled, booking events will not be published")
		return events.NopPublisher{}
	}

	pub, err := events.NewNATSPublisher(cfg.URL, log)
	if err != nil {
		log.WithError(err).WithField("url", cfg.URL).Warn("failed to connect to NATS, booking events disabled")
		return events.NopPublisher{}
	}

	log.WithField("url", cfg.URL).Info("connected to NATS")
	return pub
}
