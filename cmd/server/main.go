package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ridedispatch/internal/app"
	"ridedispatch/internal/config"
	"ridedispatch/internal/events"
	"ridedispatch/internal/handler"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/presence"
	internalRedis "ridedispatch/internal/redis"
	"ridedispatch/internal/repository"
	"ridedispatch/internal/repository/memory"
	"ridedispatch/internal/repository/postgres"
	"ridedispatch/internal/service"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Service: cfg.NewRelic.AppName})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.WithError(err).Warn("failed to initialize New Relic")
			nrApp = nil
		} else {
			log.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	var store repository.Store
	switch cfg.Store.Driver {
	case "postgres":
		db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to database")
		}
		defer db.Close()
		log.WithField("driver", cfg.Database.Driver).Info("connected to PostgreSQL")
		store = postgres.NewStore(db)
	default:
		log.Warn("using in-memory ride store")
		store = memory.NewStore()
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = app.NewRedisClient(ctx, cfg.Redis, nrApp)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info("connected to Redis")
	}

	var presenceStore presence.Store
	if cfg.Presence.Driver == "redis" {
		presenceStore = internalRedis.NewPresenceStore(redisClient)
	} else {
		log.Warn("using in-memory presence registry")
		presenceStore = presence.NewMemoryRegistry()
	}

	var leases service.LeaseManager
	if redisClient != nil {
		leases = internalRedis.NewLockStore(redisClient, instanceID())
	}

	hub := events.NewHub(log)
	publisher, closers, err := buildPublisher(cfg, hub, log)
	if err != nil {
		log.WithError(err).Fatal("failed to set up event sinks")
	}
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				log.WithError(err).Warn("failed to close event sink")
			}
		}
	}()

	// Wire dependencies.
	dispatchCfg := dispatchConfig(cfg.Dispatch)
	eventLog := service.NewEventLog(publisher, log)
	matcher := service.NewMatchingEngine(presenceStore, dispatchCfg.Matching(), time.Now, log)
	offers := service.NewOfferManager(store, eventLog, dispatchCfg.OfferTTL, time.Now, log)
	machine := service.NewStateMachine(store, eventLog, time.Now, log)
	rideService := service.NewRideService(store, matcher, offers, machine, eventLog, dispatchCfg, time.Now, log)
	presenceService := service.NewPresenceService(presenceStore, time.Now, log)

	router := app.NewRouter(app.RouterDeps{
		RideHandler:   handler.NewRideHandler(rideService),
		DriverHandler: handler.NewDriverHandler(presenceService, rideService),
		StreamHandler: handler.NewStreamHandler(rideService, hub, log),
		RedisClient:   redisClient,
		NewRelicApp:   nrApp,
		JWTSecret:     cfg.Auth.Secret,
		Origins:       cfg.Server.AllowedOrigins,
		Logger:        log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background jobs stop when jobsCtx is cancelled.
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	var jobs sync.WaitGroup
	jobs.Add(2)
	go func() {
		defer jobs.Done()
		offers.RunExpiryJanitor(jobsCtx, dispatchCfg, leases)
	}()
	go func() {
		defer jobs.Done()
		rideService.RunScheduler(jobsCtx, leases)
	}()

	// Start server in goroutine.
	go func() {
		log.WithField("port", cfg.Server.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	stopJobs()
	jobs.Wait()

	if nrApp != nil {
		nrApp.Shutdown(cfg.Server.ShutdownTimeout)
	}
	log.Info("server exited")
}

// buildPublisher assembles the configured event sinks.
func buildPublisher(cfg *config.Config, hub *events.Hub, log logrus.FieldLogger) (events.Publisher, []func() error, error) {
	multi := events.NewMulti(log)
	var closers []func() error

	for _, sink := range cfg.Events.Sinks {
		switch sink {
		case "log":
			multi.Add("log", events.NewLogPublisher(log))
		case "websocket":
			multi.Add("websocket", hub)
		case "kafka":
			kafka := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout)
			multi.Add("kafka", kafka)
			closers = append(closers, kafka.Close)
		case "nsq":
			nsq, err := events.NewNSQPublisher(cfg.NSQ.Address, cfg.NSQ.Topic)
			if err != nil {
				return nil, closers, err
			}
			multi.Add("nsq", nsq)
			closers = append(closers, nsq.Close)
		}
	}

	log.WithField("sinks", cfg.Events.Sinks).Info("event sinks configured")
	return multi, closers, nil
}

func dispatchConfig(c config.DispatchConfig) service.DispatchConfig {
	return service.DispatchConfig{
		OfferTTL:           c.OfferTTL,
		FreshnessWindow:    c.FreshnessWindow,
		MaxCandidates:      c.MaxCandidates,
		SearchRadiusKm:     c.SearchRadiusKm,
		CellPrecision:      c.CellPrecision,
		JanitorInterval:    c.JanitorInterval,
		JanitorBatchSize:   c.JanitorBatchSize,
		SchedulerInterval:  c.SchedulerInterval,
		SchedulerBatchSize: c.SchedulerBatchSize,
		LeaseTTL:           c.LeaseTTL,
	}
}

// instanceID names this process as a lease owner.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()
}
