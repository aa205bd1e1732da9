package domain

import "time"

// OfferStatus represents the status of a ride offer.
type OfferStatus string

const (
	OfferStatusSent     OfferStatus = "SENT"
	OfferStatusAccepted OfferStatus = "ACCEPTED"
	OfferStatusExpired  OfferStatus = "EXPIRED"
	OfferStatusRejected OfferStatus = "REJECTED"
)

// RideOffer is a time-bounded invitation for one driver to accept one ride.
type RideOffer struct {
	ID         string
	RideID     string
	DriverID   string
	Status     OfferStatus
	Rank       int     // position in the candidate list, 0 is nearest
	DistanceKm float64 // distance to the ride origin at matching time
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsOpen reports whether the offer can still be accepted at now.
func (o *RideOffer) IsOpen(now time.Time) bool {
	return o.Status == OfferStatusSent && o.ExpiresAt.After(now)
}
