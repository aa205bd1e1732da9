package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// RideService handles ride intake, matching fan-out and ride queries.
type RideService struct {
	store   repository.Store
	matcher *MatchingEngine
	offers  *OfferManager
	machine *StateMachine
	events  *EventLog
	cfg     DispatchConfig
	now     func() time.Time
	newID   func() string
	log     logrus.FieldLogger
}

// NewRideService creates a new RideService.
func NewRideService(
	store repository.Store,
	matcher *MatchingEngine,
	offers *OfferManager,
	machine *StateMachine,
	events *EventLog,
	cfg DispatchConfig,
	now func() time.Time,
	log logrus.FieldLogger,
) *RideService {
	if now == nil {
		now = time.Now
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = defaultMaxCandidates
	}
	return &RideService{
		store:   store,
		matcher: matcher,
		offers:  offers,
		machine: machine,
		events:  events,
		cfg:     cfg,
		now:     now,
		newID:   uuid.NewString,
		log:     log,
	}
}

// CreateRideRequest contains the parameters for creating a ride.
type CreateRideRequest struct {
	RequesterID   string
	Origin        domain.Location
	Destination   domain.Location
	ScheduledFor  *time.Time // Optional: nil or past means immediate
	PaymentMethod string
	PaymentStatus string // Optional: defaults to pending
	PriceCents    *int64 // Optional
}

// CreateRideResult is the created ride and the offers sent for it.
type CreateRideResult struct {
	Ride   *domain.Ride
	Offers []*domain.RideOffer
}

// CreateRide validates and stores a ride. Immediate rides start in MATCHING
// with offers fanned out to the nearest eligible drivers; rides scheduled in
// the future wait in REQUESTED for the scheduler.
func (s *RideService) CreateRide(ctx context.Context, req CreateRideRequest) (*CreateRideResult, error) {
	method, paymentStatus, err := validateCreateRequest(req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	status := domain.RideStatusMatching
	if req.ScheduledFor != nil && req.ScheduledFor.After(now) {
		status = domain.RideStatusRequested
	}

	var candidates []Candidate
	if status == domain.RideStatusMatching {
		candidates, err = s.matcher.FindCandidates(ctx, req.Origin.Lat, req.Origin.Lng, s.cfg.MaxCandidates)
		if err != nil {
			return nil, err
		}
	}

	ride := &domain.Ride{
		ID:            s.newID(),
		RequesterID:   req.RequesterID,
		Origin:        req.Origin,
		Destination:   req.Destination,
		ScheduledFor:  req.ScheduledFor,
		PriceCents:    req.PriceCents,
		PaymentMethod: method,
		PaymentStatus: paymentStatus,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var (
		offers   []*domain.RideOffer
		recorded []*domain.RideEvent
	)
	err = s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		offers, recorded = nil, nil

		if err := repos.Rides().Create(ctx, ride); err != nil {
			return err
		}

		payload := map[string]any{
			"requesterId":   ride.RequesterID,
			"status":        string(ride.Status),
			"paymentMethod": string(ride.PaymentMethod),
		}
		if ride.ScheduledFor != nil {
			payload["scheduledFor"] = ride.ScheduledFor.UTC().Format(time.RFC3339)
		}
		created, err := s.events.Record(ctx, repos, ride.ID, domain.EventRideCreated, payload, now)
		if err != nil {
			return err
		}
		recorded = append(recorded, created)

		if status != domain.RideStatusMatching {
			return nil
		}
		var started *domain.RideEvent
		offers, started, err = s.startMatching(ctx, repos, ride, candidates, 1, now)
		if err != nil {
			return err
		}
		recorded = append(recorded, started)
		return nil
	})
	if err != nil {
		return nil, internalError("create ride", err)
	}

	observability.RidesCreated.WithLabelValues(string(ride.Status)).Inc()
	s.log.WithFields(logrus.Fields{
		"ride_id":      ride.ID,
		"requester_id": ride.RequesterID,
		"status":       ride.Status,
		"candidates":   len(candidates),
	}).Info("ride created")

	s.events.Publish(ctx, recorded...)
	return &CreateRideResult{Ride: ride, Offers: offers}, nil
}

// GetRide returns a ride to its requester, its assigned driver, or a driver
// holding an offer for it.
func (s *RideService) GetRide(ctx context.Context, rideID, actorID string) (*domain.Ride, error) {
	ride, err := s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.IsParticipant(actorID) {
		return ride, nil
	}

	_, err = s.store.Offers().FindByRideAndDriver(ctx, rideID, actorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotParticipant
	}
	if err != nil {
		return nil, internalError("get ride", err)
	}
	return ride, nil
}

// ListRidesForUser returns the actor's rides, as requester or driver, newest first.
func (s *RideService) ListRidesForUser(ctx context.Context, actorID string, limit int) ([]*domain.Ride, error) {
	if actorID == "" {
		return nil, validationError("INVALID_ACTOR", "actor id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rides, err := s.store.Rides().ListByUser(ctx, actorID, limit)
	if err != nil {
		return nil, internalError("list rides", err)
	}
	return rides, nil
}

// ListOffers returns a ride's offers in rank order. The requester sees every
// offer of their ride, a driver only their own.
func (s *RideService) ListOffers(ctx context.Context, rideID, actorID, actorRole string) ([]*domain.RideOffer, error) {
	role, ok := domain.ParseActorRole(actorRole)
	if !ok {
		return nil, validationError("INVALID_ROLE", "unknown actor role %q", actorRole)
	}
	ride, err := s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}

	offers, err := s.store.Offers().ListByRide(ctx, rideID)
	if err != nil {
		return nil, internalError("list offers", err)
	}

	if role == domain.RoleRequester {
		if actorID != ride.RequesterID {
			return nil, ErrNotParticipant
		}
		return offers, nil
	}

	own := make([]*domain.RideOffer, 0, 1)
	for _, o := range offers {
		if o.DriverID == actorID {
			own = append(own, o)
		}
	}
	if len(own) == 0 && ride.DriverID != actorID {
		return nil, ErrNotParticipant
	}
	return own, nil
}

// ListOpenOffersForDriver returns the offers a driver can still accept.
func (s *RideService) ListOpenOffersForDriver(ctx context.Context, driverID, actorID string) ([]*domain.RideOffer, error) {
	if driverID == "" {
		return nil, validationError("INVALID_ARGUMENT", "driver id is required")
	}
	if driverID != actorID {
		return nil, forbiddenError("drivers may only list their own offers")
	}

	offers, err := s.store.Offers().ListOpenByDriver(ctx, driverID, s.now())
	if err != nil {
		return nil, internalError("list open offers", err)
	}
	return offers, nil
}

// ListEvents returns a ride's events in append order to its participants.
func (s *RideService) ListEvents(ctx context.Context, rideID, actorID string) ([]*domain.RideEvent, error) {
	ride, err := s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !ride.IsParticipant(actorID) {
		return nil, ErrNotParticipant
	}

	events, err := s.events.List(ctx, s.store, rideID)
	if err != nil {
		return nil, internalError("list events", err)
	}
	return events, nil
}

// AcceptOffer resolves a driver's accept at the current time.
func (s *RideService) AcceptOffer(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	return s.offers.AcceptOffer(ctx, rideID, driverID, s.now())
}

// SetRideStatus applies an explicit status change.
func (s *RideService) SetRideStatus(ctx context.Context, rideID, actorID, actorRole, target string) (*domain.Ride, error) {
	return s.machine.Transition(ctx, rideID, actorID, actorRole, target)
}

func (s *RideService) loadRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, validationError("INVALID_ARGUMENT", "ride id is required")
	}
	ride, err := s.store.Rides().GetByID(ctx, rideID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, internalError("get ride", err)
	}
	return ride, nil
}

// validateCreateRequest validates the create ride request.
func validateCreateRequest(req CreateRideRequest) (domain.PaymentMethod, domain.PaymentStatus, error) {
	if req.RequesterID == "" {
		return "", "", validationError("INVALID_REQUESTER", "requester id is required")
	}
	if err := validateLocation("origin", req.Origin); err != nil {
		return "", "", err
	}
	if err := validateLocation("destination", req.Destination); err != nil {
		return "", "", err
	}

	method, ok := domain.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return "", "", validationError("INVALID_PAYMENT_METHOD", "payment method must be one of credit_card, debit_card, cash, pix")
	}
	status, ok := domain.ParsePaymentStatus(req.PaymentStatus)
	if !ok {
		return "", "", validationError("INVALID_PAYMENT_STATUS", "payment status must be pending or paid")
	}
	if req.PriceCents != nil && *req.PriceCents < 0 {
		return "", "", validationError("INVALID_PRICE", "price must not be negative")
	}
	return method, status, nil
}

func validateLocation(field string, loc domain.Location) error {
	if !geo.ValidCoordinate(loc.Lat, loc.Lng) {
		return validationError("INVALID_LOCATION", "%s coordinates out of range", field)
	}
	if strings.TrimSpace(loc.Address) == "" {
		return validationError("INVALID_LOCATION", "%s address is required", field)
	}
	return nil
}
