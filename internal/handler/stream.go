package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"ridedispatch/internal/events"
	"ridedispatch/internal/middleware"
	"ridedispatch/internal/service"
)

// StreamHandler upgrades participants of a ride to a websocket that
// receives the ride's events as they are committed.
type StreamHandler struct {
	rideService *service.RideService
	hub         *events.Hub
	upgrader    websocket.Upgrader
	log         logrus.FieldLogger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(rideService *service.RideService, hub *events.Hub, log logrus.FieldLogger) *StreamHandler {
	return &StreamHandler{
		rideService: rideService,
		hub:         hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Stream handles GET /v1/rides/:id/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	actor, _ := middleware.Actor(c)
	rideID := c.Param("id")

	// Same visibility as the event log.
	if _, err := h.rideService.ListEvents(c.Request.Context(), rideID, actor.UserID); err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithField("ride_id", rideID).WithError(err).Warn("websocket upgrade failed")
		return
	}

	unsubscribe := h.hub.Subscribe(rideID, conn)
	defer unsubscribe()

	h.log.WithFields(logrus.Fields{"ride_id": rideID, "user_id": actor.UserID}).Debug("ride stream opened")

	// The stream is push only; reading detects the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
