package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/repository"
)

// StateMachine applies explicit ride status changes requested by participants.
type StateMachine struct {
	store  repository.Store
	events *EventLog
	now    func() time.Time
	log    logrus.FieldLogger
}

// NewStateMachine creates a new StateMachine.
func NewStateMachine(store repository.Store, events *EventLog, now func() time.Time, log logrus.FieldLogger) *StateMachine {
	if now == nil {
		now = time.Now
	}
	return &StateMachine{store: store, events: events, now: now, log: log}
}

// Transition moves the ride to target if the actor may do so and the
// move is in the transition table. Checks run in a fixed order: input,
// ride existence, participation, role rules, then the table. Cancelling
// expires every offer still SENT for the ride in the same unit of work.
func (sm *StateMachine) Transition(ctx context.Context, rideID, actorID, actorRole, target string) (*domain.Ride, error) {
	role, ok := domain.ParseActorRole(actorRole)
	if !ok {
		return nil, validationError("INVALID_ROLE", "unknown actor role %q", actorRole)
	}
	to, ok := domain.ParseRideStatus(target)
	if !ok {
		return nil, validationError("INVALID_STATUS", "unknown ride status %q", target)
	}
	if actorID == "" {
		return nil, validationError("INVALID_ACTOR", "actor id is required")
	}
	if rideID == "" {
		return nil, validationError("INVALID_ARGUMENT", "ride id is required")
	}

	now := sm.now()
	var (
		ride     *domain.Ride
		recorded *domain.RideEvent
		expired  []string
	)

	err := sm.store.WithinTx(ctx, func(repos repository.Repositories) error {
		current, err := repos.Rides().GetByID(ctx, rideID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRideNotFound
		}
		if err != nil {
			return err
		}

		if err := checkActor(current, actorID, role, to); err != nil {
			return err
		}
		if !domain.CanTransition(current.Status, to) {
			return invalidTransitionError(string(current.Status), string(to))
		}

		swapped, err := repos.Rides().CompareAndSwapStatus(ctx, current.ID, current.Status, repository.RideUpdate{
			Status:    to,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		if !swapped {
			return ErrStatusChanged
		}

		expired = nil
		if to == domain.RideStatusCancelled {
			expired, err = repos.Offers().ExpireSentForRide(ctx, current.ID, "", now)
			if err != nil {
				return err
			}
		}

		ride, err = repos.Rides().GetByID(ctx, current.ID)
		if err != nil {
			return err
		}

		payload := map[string]any{
			"previousStatus": string(current.Status),
			"actorId":        actorID,
			"actorRole":      string(role),
		}
		if to == domain.RideStatusCancelled {
			payload["offersExpired"] = expired
		}
		recorded, err = sm.events.Record(ctx, repos, current.ID, domain.StatusEventType(to), payload, now)
		return err
	})
	if err != nil {
		return nil, internalError("transition ride", err)
	}

	observability.Transitions.WithLabelValues(string(to)).Inc()
	if len(expired) > 0 {
		observability.OffersExpired.WithLabelValues("cancelled").Add(float64(len(expired)))
	}
	sm.log.WithFields(logrus.Fields{
		"ride_id":    ride.ID,
		"status":     ride.Status,
		"actor_id":   actorID,
		"actor_role": role,
	}).Info("ride status changed")

	sm.events.Publish(ctx, recorded)
	return ride, nil
}

func checkActor(ride *domain.Ride, actorID string, role domain.ActorRole, target domain.RideStatus) error {
	if !ride.IsParticipant(actorID) {
		return ErrNotParticipant
	}

	switch role {
	case domain.RoleRequester:
		if actorID != ride.RequesterID {
			return forbiddenError("only the requester may act as requester")
		}
		if target != domain.RideStatusCancelled {
			return forbiddenError("requester may only cancel")
		}
		if ride.Status != domain.RideStatusRequested && ride.Status != domain.RideStatusMatching {
			return ErrRequesterCannotCancel
		}
	case domain.RoleDriver:
		if actorID != ride.DriverID {
			return forbiddenError("only the assigned driver may act as driver")
		}
	}
	return nil
}
