package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/presence"
)

// PresenceService accepts driver heartbeats and forwards them to the
// presence backend. Dispatch itself only ever reads presence.
type PresenceService struct {
	writer presence.Writer
	now    func() time.Time
	log    logrus.FieldLogger
}

// NewPresenceService creates a new PresenceService.
func NewPresenceService(writer presence.Writer, now func() time.Time, log logrus.FieldLogger) *PresenceService {
	if now == nil {
		now = time.Now
	}
	return &PresenceService{writer: writer, now: now, log: log}
}

// UpdatePresenceRequest contains the parameters for a driver heartbeat.
type UpdatePresenceRequest struct {
	DriverID string
	ActorID  string
	Lat      float64
	Lng      float64
	Online   bool
}

// UpdatePresence records the driver's position and availability.
// Going offline keeps the last position but removes the driver from matching.
func (s *PresenceService) UpdatePresence(ctx context.Context, req UpdatePresenceRequest) (*domain.DriverPresence, error) {
	if req.DriverID == "" {
		return nil, validationError("INVALID_DRIVER", "driver id is required")
	}
	if req.ActorID != req.DriverID {
		return nil, forbiddenError("drivers may only report their own presence")
	}
	if !geo.ValidCoordinate(req.Lat, req.Lng) {
		return nil, validationError("INVALID_LOCATION", "coordinates out of range")
	}

	p := domain.DriverPresence{
		DriverID: req.DriverID,
		Online:   req.Online,
		Lat:      req.Lat,
		Lng:      req.Lng,
		LastSeen: s.now(),
	}
	if err := s.writer.Heartbeat(ctx, p); err != nil {
		if errors.Is(err, presence.ErrUnsupportedLocation) {
			return nil, &Error{Kind: KindValidation, Code: "INVALID_LOCATION", Message: "coordinates cannot be tracked", Err: err}
		}
		return nil, internalError("update presence", err)
	}

	s.log.WithFields(logrus.Fields{
		"driver_id": p.DriverID,
		"online":    p.Online,
	}).Debug("driver presence updated")
	return &p, nil
}
