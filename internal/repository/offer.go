package repository

import (
	"context"
	"time"

	"ridedispatch/internal/domain"
)

// OfferRepository defines the persistence operations for ride offers.
type OfferRepository interface {
	// CreateBatch persists offers for one ride.
	CreateBatch(ctx context.Context, offers []*domain.RideOffer) error

	// FindOpen returns the SENT offer for (rideID, driverID) that expires after now.
	FindOpen(ctx context.Context, rideID, driverID string, now time.Time) (*domain.RideOffer, error)

	// FindByRideAndDriver returns the offer for (rideID, driverID) in any status.
	FindByRideAndDriver(ctx context.Context, rideID, driverID string) (*domain.RideOffer, error)

	// ListByRide returns a ride's offers in rank order.
	ListByRide(ctx context.Context, rideID string) ([]*domain.RideOffer, error)

	// ListOpenByDriver returns a driver's SENT offers that expire after now.
	ListOpenByDriver(ctx context.Context, driverID string, now time.Time) ([]*domain.RideOffer, error)

	// UpdateStatus moves an offer from one status to another, reporting false when from did not match.
	UpdateStatus(ctx context.Context, id string, from, to domain.OfferStatus, now time.Time) (bool, error)

	// ExpireSentForRide marks every SENT offer of the ride except exceptOfferID as EXPIRED
	// and returns the affected offer IDs.
	ExpireSentForRide(ctx context.Context, rideID, exceptOfferID string, now time.Time) ([]string, error)

	// ExpireLapsed marks up to limit SENT offers with expires_at <= now as EXPIRED and returns them.
	ExpireLapsed(ctx context.Context, now time.Time, limit int) ([]*domain.RideOffer, error)
}
