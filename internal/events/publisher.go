// Package events delivers committed ride events to downstream subscribers.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/observability"
)

// Publisher hands a committed ride event to a transport.
type Publisher interface {
	Publish(ctx context.Context, event domain.RideEvent) error
}

// Message is the wire format shared by every sink.
type Message struct {
	ID        int64          `json:"id"`
	RideID    string         `json:"ride_id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMessage converts a ride event to its wire format.
func NewMessage(e domain.RideEvent) Message {
	return Message{
		ID:        e.ID,
		RideID:    e.RideID,
		Type:      string(e.Type),
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
	}
}

type namedPublisher struct {
	name string
	Publisher
}

// Multi fans an event out to every registered sink. A failing sink does not
// stop delivery to the others.
type Multi struct {
	sinks []namedPublisher
	log   logrus.FieldLogger
}

// NewMulti creates an empty fan-out publisher.
func NewMulti(log logrus.FieldLogger) *Multi {
	return &Multi{log: log}
}

// Add registers a sink under name, used in logs and metrics.
func (m *Multi) Add(name string, p Publisher) *Multi {
	m.sinks = append(m.sinks, namedPublisher{name: name, Publisher: p})
	return m
}

// Len returns the number of registered sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Publish delivers to all sinks and joins their errors.
func (m *Multi) Publish(ctx context.Context, event domain.RideEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, event); err != nil {
			observability.EventPublishFailures.WithLabelValues(s.name).Inc()
			m.log.WithFields(logrus.Fields{
				"sink":     s.name,
				"ride_id":  event.RideID,
				"event_id": event.ID,
				"type":     event.Type,
			}).WithError(err).Warn("event publish failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
