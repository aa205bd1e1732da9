package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/auth"
	"ridedispatch/internal/domain"
	"ridedispatch/internal/events"
	"ridedispatch/internal/middleware"
	"ridedispatch/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService *service.RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// CreateRideRequest is the HTTP request body for creating a ride.
type CreateRideRequest struct {
	Origin        LocationInput `json:"origin"`
	Destination   LocationInput `json:"destination"`
	ScheduledFor  *time.Time    `json:"scheduled_for,omitempty"`
	PaymentMethod string        `json:"payment_method"` // credit_card, debit_card, cash, pix
	PaymentStatus string        `json:"payment_status,omitempty"`
	PriceCents    *int64        `json:"price_cents,omitempty"`
}

// CreateRideResponse is the HTTP response for creating or re-matching a ride.
type CreateRideResponse struct {
	Ride   RideResponse    `json:"ride"`
	Offers []OfferResponse `json:"offers"`
}

// SetStatusRequest is the HTTP request body for a status change.
type SetStatusRequest struct {
	Status string `json:"status"`
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	actor, ok := requireRole(c, domain.RoleRequester)
	if !ok {
		return
	}

	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if !req.Origin.complete() || !req.Destination.complete() {
		respondError(c, &service.Error{
			Kind:    service.KindValidation,
			Code:    "INVALID_LOCATION",
			Message: "origin and destination require lat and lng",
		})
		return
	}

	result, err := h.rideService.CreateRide(c.Request.Context(), service.CreateRideRequest{
		RequesterID:   actor.UserID,
		Origin:        req.Origin.toDomain(),
		Destination:   req.Destination.toDomain(),
		ScheduledFor:  req.ScheduledFor,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: req.PaymentStatus,
		PriceCents:    req.PriceCents,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, CreateRideResponse{
		Ride:   newRideResponse(result.Ride),
		Offers: newOfferResponses(result.Offers),
	})
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	actor, _ := middleware.Actor(c)

	ride, err := h.rideService.GetRide(c.Request.Context(), c.Param("id"), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"ride": newRideResponse(ride)})
}

// ListRides handles GET /v1/rides
func (h *RideHandler) ListRides(c *gin.Context) {
	actor, _ := middleware.Actor(c)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondBadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	rides, err := h.rideService.ListRidesForUser(c.Request.Context(), actor.UserID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, newRideResponse(r))
	}
	respondJSON(c, http.StatusOK, gin.H{"rides": out})
}

// ListOffers handles GET /v1/rides/:id/offers
func (h *RideHandler) ListOffers(c *gin.Context) {
	actor, _ := middleware.Actor(c)

	offers, err := h.rideService.ListOffers(c.Request.Context(), c.Param("id"), actor.UserID, string(actor.Role))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"offers": newOfferResponses(offers)})
}

// ListEvents handles GET /v1/rides/:id/events
func (h *RideHandler) ListEvents(c *gin.Context) {
	actor, _ := middleware.Actor(c)

	recorded, err := h.rideService.ListEvents(c.Request.Context(), c.Param("id"), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]events.Message, 0, len(recorded))
	for _, e := range recorded {
		out = append(out, events.NewMessage(*e))
	}
	respondJSON(c, http.StatusOK, gin.H{"events": out})
}

// AcceptOffer handles POST /v1/rides/:id/accept
func (h *RideHandler) AcceptOffer(c *gin.Context) {
	actor, ok := requireRole(c, domain.RoleDriver)
	if !ok {
		return
	}

	ride, err := h.rideService.AcceptOffer(c.Request.Context(), c.Param("id"), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"ride": newRideResponse(ride)})
}

// SetStatus handles POST /v1/rides/:id/status
func (h *RideHandler) SetStatus(c *gin.Context) {
	actor, _ := middleware.Actor(c)

	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.SetRideStatus(c.Request.Context(), c.Param("id"), actor.UserID, string(actor.Role), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"ride": newRideResponse(ride)})
}

// Rematch handles POST /v1/rides/:id/rematch
func (h *RideHandler) Rematch(c *gin.Context) {
	actor, ok := requireRole(c, domain.RoleRequester)
	if !ok {
		return
	}

	result, err := h.rideService.Rematch(c.Request.Context(), c.Param("id"), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CreateRideResponse{
		Ride:   newRideResponse(result.Ride),
		Offers: newOfferResponses(result.Offers),
	})
}

// requireRole responds 403 unless the caller acts under role.
func requireRole(c *gin.Context, role domain.ActorRole) (auth.Actor, bool) {
	actor, ok := middleware.Actor(c)
	if !ok || actor.Role != role {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: ErrorBody{
			Kind:    string(service.KindForbidden),
			Code:    "ROLE_REQUIRED",
			Message: "this operation requires the " + string(role) + " role",
		}})
		return actor, false
	}
	return actor, true
}
