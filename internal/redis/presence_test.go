package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/presence"
)

func setupMockRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPresenceStore_EligibleDrivers(t *testing.T) {
	ctx := context.Background()
	store := NewPresenceStore(setupMockRedis(t))
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Heartbeat(ctx, domain.DriverPresence{DriverID: "fresh", Online: true, Lat: -23.55, Lng: -46.63, LastSeen: now.Add(-30 * time.Second)}))
	require.NoError(t, store.Heartbeat(ctx, domain.DriverPresence{DriverID: "stale", Online: true, Lat: -23.56, Lng: -46.64, LastSeen: now.Add(-5 * time.Minute)}))
	require.NoError(t, store.Heartbeat(ctx, domain.DriverPresence{DriverID: "offline", Online: false, Lat: -23.57, Lng: -46.65, LastSeen: now}))

	got, err := store.EligibleDrivers(ctx, presence.Query{Now: now, Freshness: 2 * time.Minute})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].DriverID)
	assert.True(t, got[0].Online)
	assert.InDelta(t, -23.55, got[0].Lat, 1e-4)
	assert.InDelta(t, -46.63, got[0].Lng, 1e-4)
	assert.True(t, now.Add(-30*time.Second).Equal(got[0].LastSeen))
}

func TestPresenceStore_SetOffline(t *testing.T) {
	ctx := context.Background()
	store := NewPresenceStore(setupMockRedis(t))
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Heartbeat(ctx, domain.DriverPresence{DriverID: "d1", Online: true, Lat: 1, Lng: 1, LastSeen: now}))
	require.NoError(t, store.SetOffline(ctx, "d1"))

	got, err := store.EligibleDrivers(ctx, presence.Query{Now: now, Freshness: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPresenceStore_RadiusUsesGeoIndex(t *testing.T) {
	ctx := context.Background()
	store := NewPresenceStore(setupMockRedis(t))
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Heartbeat(ctx, domain.DriverPresence{DriverID: "near", Online: true, Lat: -23.5505, Lng: -46.6290, LastSeen: now}))
	require.NoError(t, store.Heartbeat(ctx, domain.DriverPresence{DriverID: "far", Online: true, Lat: -22.9068, Lng: -43.1729, LastSeen: now}))

	got, err := store.EligibleDrivers(ctx, presence.Query{
		Now: now, Freshness: time.Minute,
		Lat: -23.5505, Lng: -46.6333, RadiusKm: 10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].DriverID)
}

func TestLockStore_AcquireIsExclusive(t *testing.T) {
	ctx := context.Background()
	client := setupMockRedis(t)
	a := NewLockStore(client, "instance-a")
	b := NewLockStore(client, "instance-b")

	ok, err := a.Acquire(ctx, "offer-janitor", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, "offer-janitor", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// The holder renews on its next tick.
	ok, err = a.Acquire(ctx, "offer-janitor", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Only the owner can release.
	require.NoError(t, b.Release(ctx, "offer-janitor"))
	ok, _ = b.Acquire(ctx, "offer-janitor", time.Minute)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx, "offer-janitor"))
	ok, _ = b.Acquire(ctx, "offer-janitor", time.Minute)
	assert.True(t, ok)
}

func TestPresenceStore_RejectsPolarLatitude(t *testing.T) {
	ctx := context.Background()
	store := NewPresenceStore(setupMockRedis(t))
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := store.Heartbeat(ctx, domain.DriverPresence{DriverID: "polar", Online: true, Lat: 86, Lng: 10, LastSeen: now})
	require.ErrorIs(t, err, presence.ErrUnsupportedLocation)

	got, err := store.EligibleDrivers(ctx, presence.Query{Now: now, Freshness: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, got)
}
