package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/middleware"
	"ridedispatch/internal/service"
)

// DriverHandler handles HTTP requests from drivers.
type DriverHandler struct {
	presenceService *service.PresenceService
	rideService     *service.RideService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(presenceService *service.PresenceService, rideService *service.RideService) *DriverHandler {
	return &DriverHandler{
		presenceService: presenceService,
		rideService:     rideService,
	}
}

// UpdatePresenceRequest is the HTTP request body for a presence heartbeat.
type UpdatePresenceRequest struct {
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
	Online bool     `json:"online"`
}

// UpdatePresence handles PUT /v1/drivers/:id/presence
func (h *DriverHandler) UpdatePresence(c *gin.Context) {
	actor, ok := requireRole(c, domain.RoleDriver)
	if !ok {
		return
	}

	var req UpdatePresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		respondBadRequest(c, "lat and lng are required")
		return
	}

	p, err := h.presenceService.UpdatePresence(c.Request.Context(), service.UpdatePresenceRequest{
		DriverID: c.Param("id"),
		ActorID:  actor.UserID,
		Lat:      *req.Lat,
		Lng:      *req.Lng,
		Online:   req.Online,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"driver_id": p.DriverID,
		"online":    p.Online,
		"lat":       p.Lat,
		"lng":       p.Lng,
		"last_seen": p.LastSeen,
	})
}

// ListOpenOffers handles GET /v1/drivers/:id/offers
func (h *DriverHandler) ListOpenOffers(c *gin.Context) {
	actor, _ := middleware.Actor(c)

	offers, err := h.rideService.ListOpenOffersForDriver(c.Request.Context(), c.Param("id"), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"offers": newOfferResponses(offers)})
}
