package service_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/service"
)

type fakeLeases struct {
	mu       sync.Mutex
	grant    bool
	err      error
	acquired int
	released int
	ttl      time.Duration
}

func (l *fakeLeases) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired++
	l.ttl = ttl
	return l.grant, l.err
}

func (l *fakeLeases) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
	return nil
}

func (l *fakeLeases) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired, l.released
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// runJob starts job and stops it as soon as until reports true.
func runJob(t *testing.T, job service.PeriodicJob, until func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		job.Start(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for !until() {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("job did not make progress")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestPeriodicJob_RunsWithoutLeases(t *testing.T) {
	var mu sync.Mutex
	runs := 0

	runJob(t, service.PeriodicJob{
		Name:     "test",
		Interval: 2 * time.Millisecond,
		Log:      quietLogger(),
		Run: func(ctx context.Context) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			runs++
			return 1, nil
		},
	}, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 3
	})
}

func TestPeriodicJob_SkipsWhenLeaseHeldElsewhere(t *testing.T) {
	leases := &fakeLeases{grant: false}
	var mu sync.Mutex
	runs := 0

	runJob(t, service.PeriodicJob{
		Name:     "test",
		Interval: 2 * time.Millisecond,
		Leases:   leases,
		Log:      quietLogger(),
		Run: func(ctx context.Context) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			runs++
			return 0, nil
		},
	}, func() bool {
		acquired, _ := leases.counts()
		return acquired >= 3
	})

	mu.Lock()
	defer mu.Unlock()
	if runs != 0 {
		t.Fatalf("expected no runs without the lease, got %d", runs)
	}
	if _, released := leases.counts(); released != 0 {
		t.Fatalf("expected no release of an unheld lease, got %d", released)
	}
}

func TestPeriodicJob_ReleasesLeaseOnShutdown(t *testing.T) {
	leases := &fakeLeases{grant: true}
	var mu sync.Mutex
	runs := 0

	runJob(t, service.PeriodicJob{
		Name:     "test",
		Interval: 2 * time.Millisecond,
		Leases:   leases,
		Log:      quietLogger(),
		Run: func(ctx context.Context) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			runs++
			return 0, errors.New("boom")
		},
	}, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 2
	})

	acquired, released := leases.counts()
	if acquired < 2 {
		t.Fatalf("expected a lease per tick, got %d", acquired)
	}
	if released != 1 {
		t.Fatalf("expected one release on shutdown, got %d", released)
	}
	if leases.ttl != 2*time.Millisecond {
		t.Fatalf("expected lease ttl to default to the interval, got %s", leases.ttl)
	}
}

func TestPeriodicJob_ZeroIntervalReturnsImmediately(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		service.PeriodicJob{Name: "off", Log: quietLogger()}.Start(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected a disabled job to return")
	}
}

func TestRunExpiryJanitor_SweepsLapsedOffers(t *testing.T) {
	f := newFixture(t)
	f.addDriver(t, "driver-a", 0.5)
	res := f.createRide(t)
	f.clock.Advance(2 * time.Minute)

	cfg := testConfig()
	cfg.JanitorInterval = 2 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.offers.RunExpiryJanitor(ctx, cfg, nil)
	}()

	deadline := time.After(2 * time.Second)
	for {
		offer, err := f.store.Offers().FindByRideAndDriver(context.Background(), res.Ride.ID, "driver-a")
		if err == nil && offer.Status == "EXPIRED" {
			break
		}
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("janitor did not expire the offer")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}
