package service_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/presence"
	"ridedispatch/internal/repository/memory"
	"ridedispatch/internal/service"
)

// Praça da Sé, São Paulo.
const (
	originLat = -23.5505
	originLng = -46.6333

	kmPerDegreeLat = 111.19492664455873
)

// ──────────────────────────────────────────────
// TEST CLOCK
// ──────────────────────────────────────────────

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ──────────────────────────────────────────────
// RECORDING PUBLISHER
// ──────────────────────────────────────────────

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RideEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.RideEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(typ domain.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// ──────────────────────────────────────────────
// FIXTURE
// ──────────────────────────────────────────────

type fixture struct {
	store     *memory.Store
	registry  *presence.MemoryRegistry
	clock     *testClock
	published *recordingPublisher

	matcher   *service.MatchingEngine
	offers    *service.OfferManager
	machine   *service.StateMachine
	rides     *service.RideService
	presences *service.PresenceService
}

func testConfig() service.DispatchConfig {
	return service.DispatchConfig{
		OfferTTL:           90 * time.Second,
		FreshnessWindow:    2 * time.Minute,
		MaxCandidates:      5,
		JanitorBatchSize:   100,
		SchedulerBatchSize: 100,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, testConfig())
}

func newFixtureWithConfig(t *testing.T, cfg service.DispatchConfig) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{
		store:     memory.NewStore(),
		registry:  presence.NewMemoryRegistry(),
		clock:     newTestClock(),
		published: &recordingPublisher{},
	}

	eventLog := service.NewEventLog(f.published, log)
	f.matcher = service.NewMatchingEngine(f.registry, cfg.Matching(), f.clock.Now, log)
	f.offers = service.NewOfferManager(f.store, eventLog, cfg.OfferTTL, f.clock.Now, log)
	f.machine = service.NewStateMachine(f.store, eventLog, f.clock.Now, log)
	f.rides = service.NewRideService(f.store, f.matcher, f.offers, f.machine, eventLog, cfg, f.clock.Now, log)
	f.presences = service.NewPresenceService(f.registry, f.clock.Now, log)
	return f
}

// addDriver puts an online driver kmNorth kilometres due north of the origin.
func (f *fixture) addDriver(t *testing.T, id string, kmNorth float64) {
	t.Helper()
	err := f.registry.Heartbeat(context.Background(), domain.DriverPresence{
		DriverID: id,
		Online:   true,
		Lat:      originLat + kmNorth/kmPerDegreeLat,
		Lng:      originLng,
		LastSeen: f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("heartbeat %s: %v", id, err)
	}
}

func rideRequest() service.CreateRideRequest {
	return service.CreateRideRequest{
		RequesterID:   "rider-1",
		Origin:        domain.Location{Lat: originLat, Lng: originLng, Address: "Praça da Sé"},
		Destination:   domain.Location{Lat: -23.5614, Lng: -46.6559, Address: "Avenida Paulista, 1578"},
		PaymentMethod: "pix",
	}
}

func (f *fixture) createRide(t *testing.T) *service.CreateRideResult {
	t.Helper()
	res, err := f.rides.CreateRide(context.Background(), rideRequest())
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return res
}

func (f *fixture) ride(t *testing.T, id string) *domain.Ride {
	t.Helper()
	ride, err := f.store.Rides().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get ride %s: %v", id, err)
	}
	return ride
}

func (f *fixture) offer(t *testing.T, rideID, driverID string) *domain.RideOffer {
	t.Helper()
	offer, err := f.store.Offers().FindByRideAndDriver(context.Background(), rideID, driverID)
	if err != nil {
		t.Fatalf("get offer %s/%s: %v", rideID, driverID, err)
	}
	return offer
}

func (f *fixture) eventTypes(t *testing.T, rideID string) []domain.EventType {
	t.Helper()
	events, err := f.store.Events().ListByRide(context.Background(), rideID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	types := make([]domain.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func (f *fixture) lastEvent(t *testing.T, rideID string) *domain.RideEvent {
	t.Helper()
	events, err := f.store.Events().ListByRide(context.Background(), rideID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("no events for ride %s", rideID)
	}
	return events[len(events)-1]
}

// acceptedRide creates a ride offered to driver-a and driver-b and has
// driver-a accept it.
func (f *fixture) acceptedRide(t *testing.T) *domain.Ride {
	t.Helper()
	f.addDriver(t, "driver-a", 0.5)
	f.addDriver(t, "driver-b", 2)
	res := f.createRide(t)

	ride, err := f.rides.AcceptOffer(context.Background(), res.Ride.ID, "driver-a")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return ride
}

func assertKind(t *testing.T, err error, kind service.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := service.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}
