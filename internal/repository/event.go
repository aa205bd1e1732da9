package repository

import (
	"context"

	"ridedispatch/internal/domain"
)

// EventRepository is the append-only ride event log.
type EventRepository interface {
	// Append persists the event and sets its ID.
	Append(ctx context.Context, event *domain.RideEvent) error

	// ListByRide returns a ride's events in append order.
	ListByRide(ctx context.Context, rideID string) ([]*domain.RideEvent, error)
}
