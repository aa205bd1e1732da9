package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ridedispatch/internal/handler"
	"ridedispatch/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler   *handler.RideHandler
	DriverHandler *handler.DriverHandler
	StreamHandler *handler.StreamHandler
	RedisClient   *redis.Client // nil disables idempotent replay
	NewRelicApp   *newrelic.Application
	JWTSecret     string
	Origins       []string // CORS allowed origins, empty allows all
	Logger        logrus.FieldLogger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.CORSMiddleware(deps.Origins))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.Metrics())
	router.Use(middleware.NewRelicAttributes())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.Use(middleware.JWTAuthMiddleware(deps.JWTSecret))
	v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger))
	{
		// Ride routes.
		rides := v1.Group("/rides")
		{
			rides.POST("", deps.RideHandler.CreateRide)
			rides.GET("", deps.RideHandler.ListRides)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.GET("/:id/offers", deps.RideHandler.ListOffers)
			rides.GET("/:id/events", deps.RideHandler.ListEvents)
			rides.GET("/:id/stream", deps.StreamHandler.Stream)
			rides.POST("/:id/accept", deps.RideHandler.AcceptOffer)
			rides.POST("/:id/status", deps.RideHandler.SetStatus)
			rides.POST("/:id/rematch", deps.RideHandler.Rematch)
		}

		// Driver routes.
		drivers := v1.Group("/drivers")
		{
			drivers.PUT("/:id/presence", deps.DriverHandler.UpdatePresence)
			drivers.GET("/:id/offers", deps.DriverHandler.ListOpenOffers)
		}
	}

	return router
}
