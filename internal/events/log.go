package events

import (
	"context"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/domain"
)

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	log logrus.FieldLogger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.RideEvent) error {
	p.log.WithFields(logrus.Fields{
		"ride_id":  event.RideID,
		"event_id": event.ID,
		"type":     event.Type,
		"payload":  event.Payload,
	}).Info("ride event")
	return nil
}
