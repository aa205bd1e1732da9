package repository

import "context"

// Repositories groups the repositories sharing one connection or transaction.
type Repositories interface {
	Rides() RideRepository
	Offers() OfferRepository
	Events() EventRepository
}

// Store owns ride, offer and event persistence.
type Store interface {
	Repositories

	// WithinTx runs fn in a single unit of work. Every write made through
	// the Repositories passed to fn is committed together, or discarded if
	// fn returns an error.
	WithinTx(ctx context.Context, fn func(Repositories) error) error
}
