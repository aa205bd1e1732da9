package handler

import (
	"time"

	"ridedispatch/internal/domain"
)

// LocationBody is a point with its address.
type LocationBody struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

// LocationInput is a point in a request body. Coordinates are pointers so
// that an omitted latitude or longitude is told apart from zero.
type LocationInput struct {
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Address string   `json:"address"`
}

func (l LocationInput) complete() bool {
	return l.Lat != nil && l.Lng != nil
}

func (l LocationInput) toDomain() domain.Location {
	loc := domain.Location{Address: l.Address}
	if l.Lat != nil {
		loc.Lat = *l.Lat
	}
	if l.Lng != nil {
		loc.Lng = *l.Lng
	}
	return loc
}

func newLocationBody(l domain.Location) LocationBody {
	return LocationBody{Lat: l.Lat, Lng: l.Lng, Address: l.Address}
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID            string       `json:"id"`
	RequesterID   string       `json:"requester_id"`
	DriverID      string       `json:"driver_id,omitempty"`
	Origin        LocationBody `json:"origin"`
	Destination   LocationBody `json:"destination"`
	ScheduledFor  *time.Time   `json:"scheduled_for,omitempty"`
	PriceCents    *int64       `json:"price_cents,omitempty"`
	PaymentMethod string       `json:"payment_method"`
	PaymentStatus string       `json:"payment_status"`
	Status        string       `json:"status"`
	StatusVersion int          `json:"status_version"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func newRideResponse(r *domain.Ride) RideResponse {
	return RideResponse{
		ID:            r.ID,
		RequesterID:   r.RequesterID,
		DriverID:      r.DriverID,
		Origin:        newLocationBody(r.Origin),
		Destination:   newLocationBody(r.Destination),
		ScheduledFor:  r.ScheduledFor,
		PriceCents:    r.PriceCents,
		PaymentMethod: string(r.PaymentMethod),
		PaymentStatus: string(r.PaymentStatus),
		Status:        string(r.Status),
		StatusVersion: r.StatusVersion,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// OfferResponse is the HTTP representation of a ride offer.
type OfferResponse struct {
	ID         string    `json:"id"`
	RideID     string    `json:"ride_id"`
	DriverID   string    `json:"driver_id"`
	Status     string    `json:"status"`
	Rank       int       `json:"rank"`
	DistanceKm float64   `json:"distance_km"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func newOfferResponses(offers []*domain.RideOffer) []OfferResponse {
	out := make([]OfferResponse, 0, len(offers))
	for _, o := range offers {
		out = append(out, OfferResponse{
			ID:         o.ID,
			RideID:     o.RideID,
			DriverID:   o.DriverID,
			Status:     string(o.Status),
			Rank:       o.Rank,
			DistanceKm: o.DistanceKm,
			ExpiresAt:  o.ExpiresAt,
			CreatedAt:  o.CreatedAt,
		})
	}
	return out
}
