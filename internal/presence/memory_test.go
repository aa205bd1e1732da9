package presence

import (
	"context"
	"testing"
	"time"

	"ridedispatch/internal/domain"
)

func TestMemoryRegistry_FreshnessWindow(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_ = reg.Heartbeat(ctx, domain.DriverPresence{DriverID: "fresh", Online: true, LastSeen: now.Add(-30 * time.Second)})
	_ = reg.Heartbeat(ctx, domain.DriverPresence{DriverID: "edge", Online: true, LastSeen: now.Add(-2 * time.Minute)})
	_ = reg.Heartbeat(ctx, domain.DriverPresence{DriverID: "stale", Online: true, LastSeen: now.Add(-3 * time.Minute)})
	_ = reg.Heartbeat(ctx, domain.DriverPresence{DriverID: "offline", Online: false, LastSeen: now})

	got, err := reg.EligibleDrivers(ctx, Query{Now: now, Freshness: 2 * time.Minute})
	if err != nil {
		t.Fatalf("eligible drivers: %v", err)
	}
	if len(got) != 2 || got[0].DriverID != "edge" || got[1].DriverID != "fresh" {
		t.Errorf("expected [edge fresh], got %+v", got)
	}
}

func TestMemoryRegistry_SetOffline(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	now := time.Now()

	_ = reg.Heartbeat(ctx, domain.DriverPresence{DriverID: "d1", Online: true, LastSeen: now})
	_ = reg.SetOffline(ctx, "d1")

	got, _ := reg.EligibleDrivers(ctx, Query{Now: now, Freshness: time.Minute})
	if len(got) != 0 {
		t.Errorf("expected offline driver to be excluded, got %+v", got)
	}
}

func TestMemoryRegistry_RadiusPrefilter(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	now := time.Now()

	_ = reg.Heartbeat(ctx, domain.DriverPresence{DriverID: "near", Online: true, Lat: -23.5505, Lng: -46.6290, LastSeen: now})
	_ = reg.Heartbeat(ctx, domain.DriverPresence{DriverID: "far", Online: true, Lat: -22.9068, Lng: -43.1729, LastSeen: now})

	got, _ := reg.EligibleDrivers(ctx, Query{Now: now, Freshness: time.Minute, Lat: -23.5505, Lng: -46.6333, RadiusKm: 10})
	if len(got) != 1 || got[0].DriverID != "near" {
		t.Errorf("expected only near driver, got %+v", got)
	}
}
