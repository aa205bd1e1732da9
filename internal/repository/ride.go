package repository

import (
	"context"
	"time"

	"ridedispatch/internal/domain"
)

// RideUpdate holds the fields written by a conditional status change.
type RideUpdate struct {
	Status    domain.RideStatus
	DriverID  *string // nil leaves the assigned driver untouched
	UpdatedAt time.Time
}

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// ListByUser returns rides where userID is the requester or the assigned driver, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Ride, error)

	// ListDueScheduled returns REQUESTED rides whose scheduled time is at or before now.
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*domain.Ride, error)

	// CompareAndSwapStatus applies update only if the ride's current status equals expected.
	// It reports false when the guard did not match.
	CompareAndSwapStatus(ctx context.Context, id string, expected domain.RideStatus, update RideUpdate) (bool, error)
}
