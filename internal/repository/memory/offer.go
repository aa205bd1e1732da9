package memory

import (
	"context"
	"sort"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/repository"
)

type offerRepo struct {
	store *Store
	inTx  bool
}

func (r *offerRepo) CreateBatch(ctx context.Context, offers []*domain.RideOffer) error {
	defer r.store.lock(r.inTx)()

	st := &r.store.state
	for _, o := range offers {
		if _, ok := st.offers[o.ID]; ok {
			return repository.ErrDuplicate
		}
		for _, existing := range st.offers {
			if existing.RideID == o.RideID && existing.DriverID == o.DriverID {
				return repository.ErrDuplicate
			}
		}
	}
	for _, o := range offers {
		st.offers[o.ID] = *o
	}
	return nil
}

func (r *offerRepo) FindOpen(ctx context.Context, rideID, driverID string, now time.Time) (*domain.RideOffer, error) {
	defer r.store.lock(r.inTx)()

	for _, o := range r.store.state.offers {
		if o.RideID == rideID && o.DriverID == driverID && o.IsOpen(now) {
			return &o, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *offerRepo) FindByRideAndDriver(ctx context.Context, rideID, driverID string) (*domain.RideOffer, error) {
	defer r.store.lock(r.inTx)()

	for _, o := range r.store.state.offers {
		if o.RideID == rideID && o.DriverID == driverID {
			return &o, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *offerRepo) ListByRide(ctx context.Context, rideID string) ([]*domain.RideOffer, error) {
	defer r.store.lock(r.inTx)()

	var offers []*domain.RideOffer
	for _, o := range r.store.state.offers {
		if o.RideID == rideID {
			o := o
			offers = append(offers, &o)
		}
	}
	sort.Slice(offers, func(i, j int) bool {
		if offers[i].Rank == offers[j].Rank {
			return offers[i].CreatedAt.Before(offers[j].CreatedAt)
		}
		return offers[i].Rank < offers[j].Rank
	})
	return offers, nil
}

func (r *offerRepo) ListOpenByDriver(ctx context.Context, driverID string, now time.Time) ([]*domain.RideOffer, error) {
	defer r.store.lock(r.inTx)()

	var offers []*domain.RideOffer
	for _, o := range r.store.state.offers {
		if o.DriverID == driverID && o.IsOpen(now) {
			o := o
			offers = append(offers, &o)
		}
	}
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].CreatedAt.After(offers[j].CreatedAt)
	})
	return offers, nil
}

func (r *offerRepo) UpdateStatus(ctx context.Context, id string, from, to domain.OfferStatus, now time.Time) (bool, error) {
	defer r.store.lock(r.inTx)()

	o, ok := r.store.state.offers[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = now
	r.store.state.offers[id] = o
	return true, nil
}

func (r *offerRepo) ExpireSentForRide(ctx context.Context, rideID, exceptOfferID string, now time.Time) ([]string, error) {
	defer r.store.lock(r.inTx)()

	var ids []string
	for id, o := range r.store.state.offers {
		if o.RideID != rideID || o.ID == exceptOfferID || o.Status != domain.OfferStatusSent {
			continue
		}
		o.Status = domain.OfferStatusExpired
		o.UpdatedAt = now
		r.store.state.offers[id] = o
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *offerRepo) ExpireLapsed(ctx context.Context, now time.Time, limit int) ([]*domain.RideOffer, error) {
	defer r.store.lock(r.inTx)()

	var lapsed []*domain.RideOffer
	for _, o := range r.store.state.offers {
		if o.Status == domain.OfferStatusSent && !o.ExpiresAt.After(now) {
			o := o
			lapsed = append(lapsed, &o)
		}
	}
	sort.Slice(lapsed, func(i, j int) bool {
		return lapsed[i].ExpiresAt.Before(lapsed[j].ExpiresAt)
	})
	if limit > 0 && len(lapsed) > limit {
		lapsed = lapsed[:limit]
	}
	for _, o := range lapsed {
		o.Status = domain.OfferStatusExpired
		o.UpdatedAt = now
		r.store.state.offers[o.ID] = *o
	}
	return lapsed, nil
}
