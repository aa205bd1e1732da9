package memory

import (
	"context"
	"sort"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/repository"
)

type rideRepo struct {
	store *Store
	inTx  bool
}

func (r *rideRepo) Create(ctx context.Context, ride *domain.Ride) error {
	defer r.store.lock(r.inTx)()

	if _, ok := r.store.state.rides[ride.ID]; ok {
		return repository.ErrDuplicate
	}
	r.store.state.rides[ride.ID] = *ride
	return nil
}

func (r *rideRepo) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	defer r.store.lock(r.inTx)()

	ride, ok := r.store.state.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ride, nil
}

func (r *rideRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Ride, error) {
	defer r.store.lock(r.inTx)()

	var rides []*domain.Ride
	for _, ride := range r.store.state.rides {
		if ride.RequesterID == userID || (ride.DriverID != "" && ride.DriverID == userID) {
			ride := ride
			rides = append(rides, &ride)
		}
	}
	sort.Slice(rides, func(i, j int) bool {
		if rides[i].CreatedAt.Equal(rides[j].CreatedAt) {
			return rides[i].ID < rides[j].ID
		}
		return rides[i].CreatedAt.After(rides[j].CreatedAt)
	})
	if limit > 0 && len(rides) > limit {
		rides = rides[:limit]
	}
	return rides, nil
}

func (r *rideRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*domain.Ride, error) {
	defer r.store.lock(r.inTx)()

	var rides []*domain.Ride
	for _, ride := range r.store.state.rides {
		if ride.Status != domain.RideStatusRequested || ride.ScheduledFor == nil || ride.ScheduledFor.After(now) {
			continue
		}
		ride := ride
		rides = append(rides, &ride)
	}
	sort.Slice(rides, func(i, j int) bool {
		return rides[i].ScheduledFor.Before(*rides[j].ScheduledFor)
	})
	if limit > 0 && len(rides) > limit {
		rides = rides[:limit]
	}
	return rides, nil
}

func (r *rideRepo) CompareAndSwapStatus(ctx context.Context, id string, expected domain.RideStatus, update repository.RideUpdate) (bool, error) {
	defer r.store.lock(r.inTx)()

	ride, ok := r.store.state.rides[id]
	if !ok || ride.Status != expected {
		return false, nil
	}
	ride.Status = update.Status
	if update.DriverID != nil {
		ride.DriverID = *update.DriverID
	}
	ride.StatusVersion++
	ride.UpdatedAt = update.UpdatedAt
	r.store.state.rides[id] = ride
	return true, nil
}
