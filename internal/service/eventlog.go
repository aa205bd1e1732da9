package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/events"
	"ridedispatch/internal/repository"
)

// EventLog appends ride events inside the caller's unit of work and hands
// them to subscribers once that unit of work has committed.
type EventLog struct {
	publisher events.Publisher
	log       logrus.FieldLogger
}

// NewEventLog creates an EventLog. publisher may be nil.
func NewEventLog(publisher events.Publisher, log logrus.FieldLogger) *EventLog {
	return &EventLog{publisher: publisher, log: log}
}

// Record appends an event through repos.
func (l *EventLog) Record(ctx context.Context, repos repository.Repositories, rideID string, typ domain.EventType, payload map[string]any, at time.Time) (*domain.RideEvent, error) {
	event := &domain.RideEvent{
		RideID:    rideID,
		Type:      typ,
		Payload:   payload,
		CreatedAt: at,
	}
	if err := repos.Events().Append(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Publish delivers committed events in order. Delivery failures are logged
// by the publisher and never reach the caller; the stored log stays the
// source of truth and subscribers can catch up from it.
func (l *EventLog) Publish(ctx context.Context, recorded ...*domain.RideEvent) {
	if l.publisher == nil {
		return
	}
	for _, e := range recorded {
		if e == nil {
			continue
		}
		if err := l.publisher.Publish(ctx, *e); err != nil {
			l.log.WithFields(logrus.Fields{
				"ride_id":  e.RideID,
				"event_id": e.ID,
				"type":     e.Type,
			}).WithError(err).Debug("ride event not fully delivered")
		}
	}
}

// List returns a ride's events in append order.
func (l *EventLog) List(ctx context.Context, repos repository.Repositories, rideID string) ([]*domain.RideEvent, error) {
	return repos.Events().ListByRide(ctx, rideID)
}
