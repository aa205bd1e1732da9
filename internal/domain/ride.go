package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusRequested  RideStatus = "REQUESTED"
	RideStatusMatching   RideStatus = "MATCHING"
	RideStatusAccepted   RideStatus = "ACCEPTED"
	RideStatusArriving   RideStatus = "ARRIVING"
	RideStatusInProgress RideStatus = "IN_PROGRESS"
	RideStatusCompleted  RideStatus = "COMPLETED"
	RideStatusCancelled  RideStatus = "CANCELLED"
)

var rideStatuses = map[RideStatus]struct{}{
	RideStatusRequested:  {},
	RideStatusMatching:   {},
	RideStatusAccepted:   {},
	RideStatusArriving:   {},
	RideStatusInProgress: {},
	RideStatusCompleted:  {},
	RideStatusCancelled:  {},
}

// ParseRideStatus matches s exactly against the known statuses.
func ParseRideStatus(s string) (RideStatus, bool) {
	status := RideStatus(s)
	_, ok := rideStatuses[status]
	return status, ok
}

// IsTerminal reports whether no transition can leave the status.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// HasDriver reports whether a ride in this status must carry an assigned driver.
// CANCELLED is excluded because it can be reached with or without one.
func (s RideStatus) HasDriver() bool {
	switch s {
	case RideStatusAccepted, RideStatusArriving, RideStatusInProgress, RideStatusCompleted:
		return true
	}
	return false
}

// AllowedTransitions is the ride status flow reachable through explicit
// status changes. MATCHING -> ACCEPTED only happens through offer
// acceptance and REQUESTED -> MATCHING through scheduled dispatch.
var AllowedTransitions = map[RideStatus][]RideStatus{
	RideStatusRequested:  {RideStatusCancelled},
	RideStatusMatching:   {RideStatusCancelled},
	RideStatusAccepted:   {RideStatusArriving, RideStatusCancelled},
	RideStatusArriving:   {RideStatusInProgress, RideStatusCancelled},
	RideStatusInProgress: {RideStatusCompleted, RideStatusCancelled},
}

// CanTransition reports whether from -> to is in AllowedTransitions.
func CanTransition(from, to RideStatus) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// PaymentMethod represents the payment method for a ride.
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodDebitCard  PaymentMethod = "debit_card"
	PaymentMethodCash       PaymentMethod = "cash"
	PaymentMethodPix        PaymentMethod = "pix"
)

// ParsePaymentMethod matches s exactly against the accepted methods.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch m := PaymentMethod(s); m {
	case PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodCash, PaymentMethodPix:
		return m, true
	}
	return "", false
}

// PaymentStatus is the caller supplied paid/pending flag.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// ParsePaymentStatus matches s exactly; empty defaults to pending.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch st := PaymentStatus(s); st {
	case "":
		return PaymentStatusPending, true
	case PaymentStatusPending, PaymentStatusPaid:
		return st, true
	}
	return "", false
}

// Location is a point with a human readable address.
type Location struct {
	Lat     float64
	Lng     float64
	Address string
}

// Ride represents a ride request in the system.
type Ride struct {
	ID            string
	RequesterID   string
	DriverID      string // empty until an offer is accepted
	Origin        Location
	Destination   Location
	ScheduledFor  *time.Time // nil means immediate
	PriceCents    *int64     // minor currency units, nil until priced
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	Status        RideStatus
	StatusVersion int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsParticipant reports whether userID is the requester or assigned driver.
func (r *Ride) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return r.RequesterID == userID || r.DriverID == userID
}
