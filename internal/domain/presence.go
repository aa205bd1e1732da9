package domain

import "time"

// DriverPresence is a read-only snapshot of a driver's availability.
type DriverPresence struct {
	DriverID string
	Online   bool
	Lat      float64
	Lng      float64
	LastSeen time.Time
}

// Eligible reports whether the snapshot can be used for matching at now.
func (p DriverPresence) Eligible(now time.Time, freshness time.Duration) bool {
	return p.Online && now.Sub(p.LastSeen) <= freshness
}
