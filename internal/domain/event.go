package domain

import "time"

// EventType tags a ride event.
type EventType string

const (
	EventRideCreated             EventType = "RIDE_CREATED"
	EventMatchingStarted         EventType = "MATCHING_STARTED"
	EventRideAccepted            EventType = "RIDE_ACCEPTED"
	EventOffersExpired           EventType = "OFFERS_EXPIRED"
	EventRideScheduledDispatched EventType = "RIDE_SCHEDULED_DISPATCHED"
)

// StatusEventType returns the STATUS_<X> tag for a status change.
func StatusEventType(status RideStatus) EventType {
	return EventType("STATUS_" + string(status))
}

// RideEvent is an append-only record of something that happened to a ride.
type RideEvent struct {
	ID        int64
	RideID    string
	Type      EventType
	Payload   map[string]any
	CreatedAt time.Time
}
