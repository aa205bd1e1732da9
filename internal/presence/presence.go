// Package presence describes the driver presence feed consumed by matching
// and provides an in-process registry for local runs and tests.
package presence

import (
	"context"
	"errors"
	"time"

	"ridedispatch/internal/domain"
)

// ErrUnsupportedLocation is returned by a Writer that cannot store the
// reported coordinates. Retrying the same heartbeat will not help.
var ErrUnsupportedLocation = errors.New("location not supported by presence backend")

// Query selects eligible presence snapshots.
type Query struct {
	Now       time.Time
	Freshness time.Duration

	// Optional prefilter. RadiusKm <= 0 searches everywhere.
	Lat      float64
	Lng      float64
	RadiusKm float64
}

// Registry is the read side of the presence feed. Implementations return
// only drivers that are online and seen within q.Freshness of q.Now.
type Registry interface {
	EligibleDrivers(ctx context.Context, q Query) ([]domain.DriverPresence, error)
}

// Writer is the heartbeat side, fed by the driver app and never by dispatch.
type Writer interface {
	Heartbeat(ctx context.Context, p domain.DriverPresence) error
	SetOffline(ctx context.Context, driverID string) error
}

// Store is both sides of a presence backend.
type Store interface {
	Registry
	Writer
}
