package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/service"
)

// ──────────────────────────────────────────────
// 1. OFFER FAN-OUT
// ──────────────────────────────────────────────

func TestCreateRide_OffersNearestDriversFirst(t *testing.T) {
	f := newFixture(t)
	f.addDriver(t, "driver-far", 10)
	f.addDriver(t, "driver-near", 0.5)
	f.addDriver(t, "driver-mid", 2)

	res := f.createRide(t)

	if res.Ride.Status != domain.RideStatusMatching {
		t.Fatalf("expected MATCHING, got %s", res.Ride.Status)
	}
	want := []string{"driver-near", "driver-mid", "driver-far"}
	if len(res.Offers) != len(want) {
		t.Fatalf("expected %d offers, got %d", len(want), len(res.Offers))
	}

	expiresAt := f.clock.Now().Add(90 * time.Second)
	for i, o := range res.Offers {
		if o.DriverID != want[i] {
			t.Errorf("offer %d: expected %s, got %s", i, want[i], o.DriverID)
		}
		if o.Status != domain.OfferStatusSent {
			t.Errorf("offer %d: expected SENT, got %s", i, o.Status)
		}
		if !o.ExpiresAt.Equal(expiresAt) {
			t.Errorf("offer %d: expected expiry %s, got %s", i, expiresAt, o.ExpiresAt)
		}
		if o.Rank != i {
			t.Errorf("offer %d: expected rank %d, got %d", i, i, o.Rank)
		}
	}

	listed, err := f.rides.ListOffers(context.Background(), res.Ride.ID, "rider-1", "requester")
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	for i, o := range listed {
		if o.DriverID != want[i] {
			t.Errorf("listed %d: expected %s, got %s", i, want[i], o.DriverID)
		}
	}
}

func TestCreateOffers_EmptyCandidatesIsNoop(t *testing.T) {
	f := newFixture(t)

	offers, err := f.offers.CreateOffers(context.Background(), f.store, "ride-1", nil, 0, f.clock.Now())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(offers) != 0 {
		t.Fatalf("expected no offers, got %d", len(offers))
	}
}

func TestCreateOffers_DuplicateDriverIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	candidates := []service.Candidate{{DriverID: "driver-a", DistanceKm: 1}}

	if _, err := f.offers.CreateOffers(ctx, f.store, "ride-1", candidates, time.Minute, f.clock.Now()); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	_, err := f.offers.CreateOffers(ctx, f.store, "ride-1", candidates, time.Minute, f.clock.Now())
	assertKind(t, err, service.KindConflict)
}

// ──────────────────────────────────────────────
// 2. ACCEPT RACE
// ──────────────────────────────────────────────

func TestAcceptOffer_TwoDriversRace_ExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.addDriver(t, "driver-a", 0.5)
	f.addDriver(t, "driver-b", 2)
	f.addDriver(t, "driver-c", 3)
	res := f.createRide(t)

	var wg sync.WaitGroup
	errs := make(map[string]error)
	var mu sync.Mutex
	for _, id := range []string{"driver-a", "driver-b"} {
		wg.Add(1)
		go func(driverID string) {
			defer wg.Done()
			_, err := f.rides.AcceptOffer(context.Background(), res.Ride.ID, driverID)
			mu.Lock()
			errs[driverID] = err
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	var winner, loser string
	switch {
	case errs["driver-a"] == nil && errs["driver-b"] != nil:
		winner, loser = "driver-a", "driver-b"
	case errs["driver-b"] == nil && errs["driver-a"] != nil:
		winner, loser = "driver-b", "driver-a"
	default:
		t.Fatalf("expected exactly one winner, got a=%v b=%v", errs["driver-a"], errs["driver-b"])
	}
	if !errors.Is(errs[loser], service.ErrRideAlreadyTaken) {
		t.Fatalf("expected loser to get RIDE_ALREADY_TAKEN, got %v", errs[loser])
	}
	assertKind(t, errs[loser], service.KindConflict)

	ride := f.ride(t, res.Ride.ID)
	if ride.Status != domain.RideStatusAccepted || ride.DriverID != winner {
		t.Fatalf("expected ACCEPTED by %s, got %s by %q", winner, ride.Status, ride.DriverID)
	}

	if got := f.offer(t, res.Ride.ID, winner).Status; got != domain.OfferStatusAccepted {
		t.Errorf("winner offer: expected ACCEPTED, got %s", got)
	}
	for _, id := range []string{loser, "driver-c"} {
		if got := f.offer(t, res.Ride.ID, id).Status; got != domain.OfferStatusExpired {
			t.Errorf("%s offer: expected EXPIRED, got %s", id, got)
		}
	}
}

func TestAcceptOffer_ManyConcurrentDrivers_OneAcceptedOffer(t *testing.T) {
	const drivers = 20
	f := newFixtureWithConfig(t, func() service.DispatchConfig {
		cfg := testConfig()
		cfg.MaxCandidates = drivers
		return cfg
	}())
	for i := 0; i < drivers; i++ {
		f.addDriver(t, fmt.Sprintf("driver-%02d", i), float64(i+1)*0.1)
	}
	res := f.createRide(t)
	if len(res.Offers) != drivers {
		t.Fatalf("expected %d offers, got %d", drivers, len(res.Offers))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(driverID string) {
			defer wg.Done()
			<-start
			_, err := f.rides.AcceptOffer(context.Background(), res.Ride.ID, driverID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, service.ErrConflict):
				conflicts++
			default:
				t.Errorf("%s: unexpected error %v", driverID, err)
			}
		}(fmt.Sprintf("driver-%02d", i))
	}
	close(start)
	wg.Wait()

	if successes != 1 || conflicts != drivers-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", drivers-1, successes, conflicts)
	}

	offers, err := f.store.Offers().ListByRide(context.Background(), res.Ride.ID)
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	accepted := 0
	for _, o := range offers {
		switch o.Status {
		case domain.OfferStatusAccepted:
			accepted++
		case domain.OfferStatusSent:
			t.Errorf("offer %s still SENT", o.ID)
		}
	}
	if accepted != 1 {
		t.Fatalf("expected 1 ACCEPTED offer, got %d", accepted)
	}
	if got := f.published.count(domain.EventRideAccepted); got != 1 {
		t.Fatalf("expected 1 RIDE_ACCEPTED event, got %d", got)
	}
}

func TestAcceptOffer_LoserCallDoesNotTouchItsOffer(t *testing.T) {
	f := newFixture(t)
	ride := f.acceptedRide(t)
	before := f.offer(t, ride.ID, "driver-b")

	f.clock.Advance(5 * time.Second)
	_, err := f.rides.AcceptOffer(context.Background(), ride.ID, "driver-b")
	if !errors.Is(err, service.ErrRideAlreadyTaken) {
		t.Fatalf("expected RIDE_ALREADY_TAKEN, got %v", err)
	}

	after := f.offer(t, ride.ID, "driver-b")
	if after.Status != before.Status || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("loser offer changed: %+v -> %+v", before, after)
	}
}

func TestAcceptOffer_RepeatByWinnerIsIdempotent(t *testing.T) {
	f := newFixture(t)
	first := f.acceptedRide(t)
	eventsBefore := len(f.eventTypes(t, first.ID))

	f.clock.Advance(time.Second)
	second, err := f.rides.AcceptOffer(context.Background(), first.ID, "driver-a")
	if err != nil {
		t.Fatalf("expected replay to succeed, got %v", err)
	}
	if second.Status != first.Status || second.DriverID != first.DriverID || second.StatusVersion != first.StatusVersion {
		t.Fatalf("expected same snapshot, got %+v vs %+v", second, first)
	}
	if got := len(f.eventTypes(t, first.ID)); got != eventsBefore {
		t.Fatalf("expected no new events, got %d -> %d", eventsBefore, got)
	}
}

// ──────────────────────────────────────────────
// 3. EXPIRY
// ──────────────────────────────────────────────

func TestAcceptOffer_AfterExpiry_Fails(t *testing.T) {
	f := newFixture(t)
	f.addDriver(t, "driver-a", 0.5)
	res := f.createRide(t)

	f.clock.Advance(91 * time.Second)
	_, err := f.rides.AcceptOffer(context.Background(), res.Ride.ID, "driver-a")
	if !errors.Is(err, service.ErrOfferNotFoundOrExpired) {
		t.Fatalf("expected OFFER_NOT_FOUND_OR_EXPIRED, got %v", err)
	}

	ride := f.ride(t, res.Ride.ID)
	if ride.Status != domain.RideStatusMatching || ride.DriverID != "" {
		t.Fatalf("expected MATCHING without driver, got %s %q", ride.Status, ride.DriverID)
	}
}

func TestAcceptOffer_ExactlyAtExpiry_Fails(t *testing.T) {
	f := newFixture(t)
	f.addDriver(t, "driver-a", 0.5)
	res := f.createRide(t)

	_, err := f.offers.AcceptOffer(context.Background(), res.Ride.ID, "driver-a", res.Offers[0].ExpiresAt)
	if !errors.Is(err, service.ErrOfferNotFoundOrExpired) {
		t.Fatalf("expected OFFER_NOT_FOUND_OR_EXPIRED, got %v", err)
	}
}

func TestAcceptOffer_WithoutOffer_Fails(t *testing.T) {
	f := newFixture(t)
	f.addDriver(t, "driver-a", 0.5)
	res := f.createRide(t)

	testCases := []struct {
		name     string
		rideID   string
		driverID string
		kind     service.Kind
	}{
		{name: "driver never offered", rideID: res.Ride.ID, driverID: "driver-x", kind: service.KindNotFound},
		{name: "unknown ride", rideID: "missing", driverID: "driver-a", kind: service.KindNotFound},
		{name: "empty driver", rideID: res.Ride.ID, driverID: "", kind: service.KindValidation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.rides.AcceptOffer(context.Background(), tc.rideID, tc.driverID)
			assertKind(t, err, tc.kind)
		})
	}
}

func TestExpireLapsed_MarksOffersAndRecordsEvent(t *testing.T) {
	f := newFixture(t)
	f.addDriver(t, "driver-a", 0.5)
	f.addDriver(t, "driver-b", 2)
	res := f.createRide(t)
	ctx := context.Background()

	n, err := f.offers.ExpireLapsed(ctx, 100)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing to expire yet, got %d, %v", n, err)
	}

	f.clock.Advance(2 * time.Minute)
	n, err = f.offers.ExpireLapsed(ctx, 100)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 expired offers, got %d", n)
	}

	for _, id := range []string{"driver-a", "driver-b"} {
		if got := f.offer(t, res.Ride.ID, id).Status; got != domain.OfferStatusExpired {
			t.Errorf("%s: expected EXPIRED, got %s", id, got)
		}
	}

	last := f.lastEvent(t, res.Ride.ID)
	if last.Type != domain.EventOffersExpired {
		t.Fatalf("expected OFFERS_EXPIRED, got %s", last.Type)
	}
	if last.Payload["count"] != 2 {
		t.Errorf("expected count 2, got %v", last.Payload["count"])
	}
	if f.ride(t, res.Ride.ID).Status != domain.RideStatusMatching {
		t.Error("expected ride to stay MATCHING")
	}

	n, err = f.offers.ExpireLapsed(ctx, 100)
	if err != nil || n != 0 {
		t.Fatalf("expected second sweep to be empty, got %d, %v", n, err)
	}
}
