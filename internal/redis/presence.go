package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/presence"
)

const (
	driverLocationKey = "drivers:locations"
	driverLastSeenKey = "drivers:last_seen"
	driverOnlineKey   = "drivers:online"
)

// PresenceStore keeps driver presence in Redis: positions in a GEO set,
// last-seen timestamps (unix ms) in a sorted set and the online flag in a set.
type PresenceStore struct {
	client *redis.Client
}

// NewPresenceStore creates a new PresenceStore.
func NewPresenceStore(client *redis.Client) *PresenceStore {
	return &PresenceStore{client: client}
}

// Heartbeat stores a driver's position, last-seen time and online flag atomically.
func (s *PresenceStore) Heartbeat(ctx context.Context, p domain.DriverPresence) error {
	if !geo.Indexable(p.Lat, p.Lng) {
		return fmt.Errorf("%w: lat %f outside ±%f", presence.ErrUnsupportedLocation, p.Lat, geo.MaxIndexLatitude)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.GeoAdd(ctx, driverLocationKey, &redis.GeoLocation{
			Name:      p.DriverID,
			Longitude: p.Lng,
			Latitude:  p.Lat,
		})
		pipe.ZAdd(ctx, driverLastSeenKey, redis.Z{
			Score:  float64(p.LastSeen.UnixMilli()),
			Member: p.DriverID,
		})
		if p.Online {
			pipe.SAdd(ctx, driverOnlineKey, p.DriverID)
		} else {
			pipe.SRem(ctx, driverOnlineKey, p.DriverID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store presence for %s: %w", p.DriverID, err)
	}
	return nil
}

// SetOffline clears the online flag and keeps the last known position.
func (s *PresenceStore) SetOffline(ctx context.Context, driverID string) error {
	return s.client.SRem(ctx, driverOnlineKey, driverID).Err()
}

// EligibleDrivers returns online drivers seen within the freshness window.
// With a radius the GEO index narrows the scan first.
func (s *PresenceStore) EligibleDrivers(ctx context.Context, q presence.Query) ([]domain.DriverPresence, error) {
	minScore := strconv.FormatInt(q.Now.Add(-q.Freshness).UnixMilli(), 10)
	maxScore := strconv.FormatInt(q.Now.UnixMilli(), 10)

	seen, err := s.client.ZRangeByScoreWithScores(ctx, driverLastSeenKey, &redis.ZRangeBy{
		Min: minScore,
		Max: maxScore,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read last seen: %w", err)
	}
	if len(seen) == 0 {
		return nil, nil
	}

	online, err := s.client.SMembers(ctx, driverOnlineKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read online drivers: %w", err)
	}
	onlineSet := make(map[string]struct{}, len(online))
	for _, id := range online {
		onlineSet[id] = struct{}{}
	}

	lastSeen := make(map[string]time.Time, len(seen))
	ids := make([]string, 0, len(seen))
	for _, z := range seen {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		if _, isOnline := onlineSet[id]; !isOnline {
			continue
		}
		lastSeen[id] = time.UnixMilli(int64(z.Score)).UTC()
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if q.RadiusKm > 0 {
		return s.nearby(ctx, q, lastSeen)
	}
	return s.positions(ctx, ids, lastSeen)
}

func (s *PresenceStore) positions(ctx context.Context, ids []string, lastSeen map[string]time.Time) ([]domain.DriverPresence, error) {
	positions, err := s.client.GeoPos(ctx, driverLocationKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read driver positions: %w", err)
	}

	out := make([]domain.DriverPresence, 0, len(ids))
	for i, pos := range positions {
		if pos == nil {
			continue
		}
		out = append(out, domain.DriverPresence{
			DriverID: ids[i],
			Online:   true,
			Lat:      pos.Latitude,
			Lng:      pos.Longitude,
			LastSeen: lastSeen[ids[i]],
		})
	}
	return out, nil
}

func (s *PresenceStore) nearby(ctx context.Context, q presence.Query, lastSeen map[string]time.Time) ([]domain.DriverPresence, error) {
	results, err := s.client.GeoRadius(ctx, driverLocationKey, q.Lng, q.Lat, &redis.GeoRadiusQuery{
		Radius:    q.RadiusKm,
		Unit:      "km",
		WithCoord: true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("search nearby drivers: %w", err)
	}

	out := make([]domain.DriverPresence, 0, len(results))
	for _, r := range results {
		seenAt, ok := lastSeen[r.Name]
		if !ok {
			continue
		}
		out = append(out, domain.DriverPresence{
			DriverID: r.Name,
			Online:   true,
			Lat:      r.Latitude,
			Lng:      r.Longitude,
			LastSeen: seenAt,
		})
	}
	return out, nil
}
