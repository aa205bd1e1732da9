package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/repository"
)

const defaultOfferTTL = 90 * time.Second

// OfferManager creates offers and resolves concurrent accepts.
type OfferManager struct {
	store  repository.Store
	events *EventLog
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
	log    logrus.FieldLogger
}

// NewOfferManager creates a new OfferManager. ttl <= 0 uses 90s.
func NewOfferManager(store repository.Store, events *EventLog, ttl time.Duration, now func() time.Time, log logrus.FieldLogger) *OfferManager {
	if ttl <= 0 {
		ttl = defaultOfferTTL
	}
	if now == nil {
		now = time.Now
	}
	return &OfferManager{
		store:  store,
		events: events,
		ttl:    ttl,
		now:    now,
		newID:  uuid.NewString,
		log:    log,
	}
}

// TTL returns the configured offer lifetime.
func (m *OfferManager) TTL() time.Duration {
	return m.ttl
}

// CreateOffers writes one SENT offer per candidate, all expiring at now+ttl,
// ranked in candidate order. It does not look at the ride's status.
func (m *OfferManager) CreateOffers(ctx context.Context, repos repository.Repositories, rideID string, candidates []Candidate, ttl time.Duration, now time.Time) ([]*domain.RideOffer, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = m.ttl
	}

	expiresAt := now.Add(ttl)
	offers := make([]*domain.RideOffer, 0, len(candidates))
	for i, c := range candidates {
		offers = append(offers, &domain.RideOffer{
			ID:         m.newID(),
			RideID:     rideID,
			DriverID:   c.DriverID,
			Status:     domain.OfferStatusSent,
			Rank:       i,
			DistanceKm: c.DistanceKm,
			ExpiresAt:  expiresAt,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := repos.Offers().CreateBatch(ctx, offers); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &Error{Kind: KindConflict, Code: "OFFER_EXISTS", Message: "driver already holds an offer for this ride", Err: err}
		}
		return nil, err
	}
	observability.OffersCreated.Add(float64(len(offers)))
	return offers, nil
}

// AcceptOffer assigns the ride to driverID if the driver holds an open offer
// and the ride is still MATCHING. Exactly one of any number of concurrent
// callers for the same ride succeeds; the rest get ErrRideAlreadyTaken.
// A losing call never writes its own offer, but the winner expires every
// other SENT offer of the ride, the loser's included, so after the race the
// loser's offer reads EXPIRED rather than SENT.
// Repeating a successful accept returns the current ride without a new event.
func (m *OfferManager) AcceptOffer(ctx context.Context, rideID, driverID string, now time.Time) (*domain.Ride, error) {
	if rideID == "" || driverID == "" {
		return nil, validationError("INVALID_ARGUMENT", "ride id and driver id are required")
	}

	var (
		ride     *domain.Ride
		recorded *domain.RideEvent
		replayed bool
	)

	err := m.store.WithinTx(ctx, func(repos repository.Repositories) error {
		offer, err := repos.Offers().FindOpen(ctx, rideID, driverID, now)
		if errors.Is(err, repository.ErrNotFound) {
			current, err := m.resolveClosedOffer(ctx, repos, rideID, driverID, now)
			if err != nil {
				return err
			}
			ride, replayed = current, true
			return nil
		}
		if err != nil {
			return err
		}

		driver := driverID
		swapped, err := repos.Rides().CompareAndSwapStatus(ctx, rideID, domain.RideStatusMatching, repository.RideUpdate{
			Status:    domain.RideStatusAccepted,
			DriverID:  &driver,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		if !swapped {
			// Lost the race. This driver's offer is left as it is.
			return ErrRideAlreadyTaken
		}

		accepted, err := repos.Offers().UpdateStatus(ctx, offer.ID, domain.OfferStatusSent, domain.OfferStatusAccepted, now)
		if err != nil {
			return err
		}
		if !accepted {
			// Expired by the janitor between lookup and update; rolling back
			// releases the ride again.
			return ErrOfferNotFoundOrExpired
		}

		expired, err := repos.Offers().ExpireSentForRide(ctx, rideID, offer.ID, now)
		if err != nil {
			return err
		}

		ride, err = repos.Rides().GetByID(ctx, rideID)
		if err != nil {
			return err
		}

		recorded, err = m.events.Record(ctx, repos, rideID, domain.EventRideAccepted, map[string]any{
			"driverId":       driverID,
			"offerId":        offer.ID,
			"previousStatus": string(domain.RideStatusMatching),
			"offersExpired":  expired,
		}, now)
		return err
	})

	logger := m.log.WithFields(logrus.Fields{"ride_id": rideID, "driver_id": driverID})
	if err != nil {
		err = internalError("accept offer", err)
		observability.AcceptAttempts.WithLabelValues(acceptResult(err)).Inc()
		logger.WithError(err).Info("offer accept rejected")
		return nil, err
	}

	if replayed {
		observability.AcceptAttempts.WithLabelValues("replayed").Inc()
		return ride, nil
	}

	observability.AcceptAttempts.WithLabelValues("accepted").Inc()
	if n, ok := recorded.Payload["offersExpired"].([]string); ok && len(n) > 0 {
		observability.OffersExpired.WithLabelValues("accepted_elsewhere").Add(float64(len(n)))
	}
	logger.Info("offer accepted")
	m.events.Publish(ctx, recorded)
	return ride, nil
}

// resolveClosedOffer explains why a driver has no open offer. A driver whose
// accept already won gets the ride back; a driver whose still-valid offer was
// closed by another driver's win gets ErrRideAlreadyTaken; everything else,
// including any offer past its deadline, is OFFER_NOT_FOUND_OR_EXPIRED.
func (m *OfferManager) resolveClosedOffer(ctx context.Context, repos repository.Repositories, rideID, driverID string, now time.Time) (*domain.Ride, error) {
	offer, err := repos.Offers().FindByRideAndDriver(ctx, rideID, driverID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOfferNotFoundOrExpired
	}
	if err != nil {
		return nil, err
	}

	ride, err := repos.Rides().GetByID(ctx, rideID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOfferNotFoundOrExpired
	}
	if err != nil {
		return nil, err
	}

	switch {
	case offer.Status == domain.OfferStatusAccepted && ride.DriverID == driverID:
		return ride, nil
	case !offer.ExpiresAt.After(now):
		return nil, ErrOfferNotFoundOrExpired
	case offer.Status == domain.OfferStatusExpired && ride.DriverID != "" && ride.DriverID != driverID:
		return nil, ErrRideAlreadyTaken
	default:
		return nil, ErrOfferNotFoundOrExpired
	}
}

// ExpireLapsed marks up to batch lapsed SENT offers EXPIRED and records one
// OFFERS_EXPIRED event per affected ride. Expiry is already enforced by
// timestamp at accept time; this only makes it visible.
func (m *OfferManager) ExpireLapsed(ctx context.Context, batch int) (int, error) {
	now := m.now()

	var recorded []*domain.RideEvent
	var count int
	err := m.store.WithinTx(ctx, func(repos repository.Repositories) error {
		recorded, count = nil, 0

		lapsed, err := repos.Offers().ExpireLapsed(ctx, now, batch)
		if err != nil {
			return err
		}
		count = len(lapsed)

		byRide := make(map[string][]string)
		var order []string
		for _, o := range lapsed {
			if _, ok := byRide[o.RideID]; !ok {
				order = append(order, o.RideID)
			}
			byRide[o.RideID] = append(byRide[o.RideID], o.ID)
		}

		for _, rideID := range order {
			ids := byRide[rideID]
			e, err := m.events.Record(ctx, repos, rideID, domain.EventOffersExpired, map[string]any{
				"offerIds": ids,
				"count":    len(ids),
				"reason":   "ttl",
			}, now)
			if err != nil {
				return err
			}
			recorded = append(recorded, e)
		}
		return nil
	})
	if err != nil {
		return 0, internalError("expire lapsed offers", err)
	}

	if count > 0 {
		observability.OffersExpired.WithLabelValues("ttl").Add(float64(count))
		m.log.WithField("offers", count).Info("expired lapsed offers")
	}
	m.events.Publish(ctx, recorded...)
	return count, nil
}

func acceptResult(err error) string {
	switch {
	case errors.Is(err, ErrRideAlreadyTaken):
		return "already_taken"
	case errors.Is(err, ErrOfferNotFoundOrExpired):
		return "not_found_or_expired"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
