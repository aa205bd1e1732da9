// Package memory is an in-process repository.Store used for local runs and tests.
package memory

import (
	"context"
	"sync"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/repository"
)

type state struct {
	rides       map[string]domain.Ride
	offers      map[string]domain.RideOffer
	events      []domain.RideEvent
	nextEventID int64
}

func (s *state) clone() state {
	c := state{
		rides:       make(map[string]domain.Ride, len(s.rides)),
		offers:      make(map[string]domain.RideOffer, len(s.offers)),
		events:      make([]domain.RideEvent, len(s.events)),
		nextEventID: s.nextEventID,
	}
	for k, v := range s.rides {
		c.rides[k] = v
	}
	for k, v := range s.offers {
		c.offers[k] = v
	}
	copy(c.events, s.events)
	return c
}

// Store is a mutex guarded repository.Store. A unit of work holds the
// store-wide lock for its whole duration, so concurrent transactions are
// serialized and a failed one is rolled back from a snapshot.
type Store struct {
	mu    sync.Mutex
	state state
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{state: state{
		rides:  make(map[string]domain.Ride),
		offers: make(map[string]domain.RideOffer),
	}}
}

// Ensure Store implements repository.Store.
var _ repository.Store = (*Store)(nil)

func (s *Store) Rides() repository.RideRepository   { return &rideRepo{store: s} }
func (s *Store) Offers() repository.OfferRepository { return &offerRepo{store: s} }
func (s *Store) Events() repository.EventRepository { return &eventRepo{store: s} }

// WithinTx runs fn while holding the store lock and restores the previous
// state if fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(txRepos{store: s}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// lock acquires the store lock unless the caller already holds it.
func (s *Store) lock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type txRepos struct {
	store *Store
}

func (t txRepos) Rides() repository.RideRepository   { return &rideRepo{store: t.store, inTx: true} }
func (t txRepos) Offers() repository.OfferRepository { return &offerRepo{store: t.store, inTx: true} }
func (t txRepos) Events() repository.EventRepository { return &eventRepo{store: t.store, inTx: true} }
