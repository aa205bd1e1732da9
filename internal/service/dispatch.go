package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/repository"
)

// startMatching creates offers for a MATCHING ride and records
// MATCHING_STARTED. It is emitted even when nobody was eligible.
func (s *RideService) startMatching(ctx context.Context, repos repository.Repositories, ride *domain.Ride, candidates []Candidate, attempt int, now time.Time) ([]*domain.RideOffer, *domain.RideEvent, error) {
	offers, err := s.offers.CreateOffers(ctx, repos, ride.ID, candidates, s.cfg.OfferTTL, now)
	if err != nil {
		return nil, nil, err
	}

	drivers := make([]string, 0, len(candidates))
	for _, c := range candidates {
		drivers = append(drivers, c.DriverID)
	}

	started, err := s.events.Record(ctx, repos, ride.ID, domain.EventMatchingStarted, map[string]any{
		"driversNotified": len(offers),
		"candidates":      drivers,
		"originCell":      geo.Cell(ride.Origin.Lat, ride.Origin.Lng, s.cfg.CellPrecision),
		"attempt":         attempt,
	}, now)
	if err != nil {
		return nil, nil, err
	}

	if len(offers) == 0 {
		observability.MatchesWithoutCandidates.Inc()
		s.log.WithFields(logrus.Fields{
			"ride_id": ride.ID,
			"attempt": attempt,
		}).Warn("no eligible drivers for ride")
	}
	return offers, started, nil
}

// Rematch runs matching again for a ride stuck in MATCHING. Drivers that
// already hold an offer for the ride, in any status, are skipped.
func (s *RideService) Rematch(ctx context.Context, rideID, actorID string) (*CreateRideResult, error) {
	ride, err := s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !ride.IsParticipant(actorID) {
		return nil, ErrNotParticipant
	}
	if actorID != ride.RequesterID {
		return nil, forbiddenError("only the requester may re-match a ride")
	}
	if ride.Status != domain.RideStatusMatching {
		return nil, ErrRideNotMatching
	}

	existing, err := s.store.Offers().ListByRide(ctx, rideID)
	if err != nil {
		return nil, internalError("list offers", err)
	}
	exclude := make(map[string]struct{}, len(existing))
	for _, o := range existing {
		exclude[o.DriverID] = struct{}{}
	}

	candidates, err := s.matcher.findCandidates(ctx, ride.Origin.Lat, ride.Origin.Lng, s.cfg.MaxCandidates, exclude)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var (
		offers   []*domain.RideOffer
		recorded *domain.RideEvent
	)
	err = s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		current, err := repos.Rides().GetByID(ctx, rideID)
		if err != nil {
			return err
		}
		if current.Status != domain.RideStatusMatching {
			return ErrRideNotMatching
		}
		ride = current

		history, err := repos.Events().ListByRide(ctx, rideID)
		if err != nil {
			return err
		}
		attempt := 1
		for _, e := range history {
			if e.Type == domain.EventMatchingStarted {
				attempt++
			}
		}

		offers, recorded, err = s.startMatching(ctx, repos, current, candidates, attempt, now)
		return err
	})
	if err != nil {
		return nil, internalError("rematch ride", err)
	}

	s.log.WithFields(logrus.Fields{
		"ride_id":    rideID,
		"candidates": len(candidates),
	}).Info("ride rematched")

	s.events.Publish(ctx, recorded)
	return &CreateRideResult{Ride: ride, Offers: offers}, nil
}

// DispatchDueScheduled promotes up to batch scheduled rides whose time has
// come from REQUESTED to MATCHING and fans out their offers. A ride that was
// cancelled or promoted elsewhere in the meantime is skipped.
func (s *RideService) DispatchDueScheduled(ctx context.Context, batch int) (int, error) {
	now := s.now()
	due, err := s.store.Rides().ListDueScheduled(ctx, now, batch)
	if err != nil {
		return 0, internalError("list scheduled rides", err)
	}

	var (
		dispatched int
		errs       []error
	)
	for _, ride := range due {
		ok, err := s.dispatchScheduled(ctx, ride, now)
		if err != nil {
			s.log.WithField("ride_id", ride.ID).WithError(err).Error("scheduled dispatch failed")
			errs = append(errs, err)
			continue
		}
		if ok {
			dispatched++
		}
	}
	return dispatched, errors.Join(errs...)
}

func (s *RideService) dispatchScheduled(ctx context.Context, ride *domain.Ride, now time.Time) (bool, error) {
	candidates, err := s.matcher.FindCandidates(ctx, ride.Origin.Lat, ride.Origin.Lng, s.cfg.MaxCandidates)
	if err != nil {
		return false, err
	}

	var recorded []*domain.RideEvent
	promoted := false
	err = s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		recorded, promoted = nil, false

		swapped, err := repos.Rides().CompareAndSwapStatus(ctx, ride.ID, domain.RideStatusRequested, repository.RideUpdate{
			Status:    domain.RideStatusMatching,
			UpdatedAt: now,
		})
		if err != nil || !swapped {
			return err
		}
		promoted = true

		current, err := repos.Rides().GetByID(ctx, ride.ID)
		if err != nil {
			return err
		}

		payload := map[string]any{"previousStatus": string(domain.RideStatusRequested)}
		if current.ScheduledFor != nil {
			payload["scheduledFor"] = current.ScheduledFor.UTC().Format(time.RFC3339)
		}
		promotedEvent, err := s.events.Record(ctx, repos, ride.ID, domain.EventRideScheduledDispatched, payload, now)
		if err != nil {
			return err
		}

		_, started, err := s.startMatching(ctx, repos, current, candidates, 1, now)
		if err != nil {
			return err
		}
		recorded = append(recorded, promotedEvent, started)
		return nil
	})
	if err != nil {
		return false, internalError("dispatch scheduled ride", err)
	}
	if !promoted {
		return false, nil
	}

	observability.Transitions.WithLabelValues(string(domain.RideStatusMatching)).Inc()
	s.log.WithFields(logrus.Fields{
		"ride_id":    ride.ID,
		"candidates": len(candidates),
	}).Info("scheduled ride dispatched")

	s.events.Publish(ctx, recorded...)
	return true, nil
}
