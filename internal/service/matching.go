package service

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/geo"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/presence"
)

const defaultMaxCandidates = 5

// Candidate is a driver eligible for an offer, with its distance to the origin.
type Candidate struct {
	DriverID   string
	DistanceKm float64
}

// MatchingConfig tunes candidate selection.
type MatchingConfig struct {
	FreshnessWindow time.Duration
	MaxCandidates   int
	SearchRadiusKm  float64 // 0 searches every eligible driver
}

// MatchingEngine ranks eligible drivers by distance to a ride origin.
type MatchingEngine struct {
	registry presence.Registry
	cfg      MatchingConfig
	now      func() time.Time
	log      logrus.FieldLogger
}

// NewMatchingEngine creates a new MatchingEngine.
func NewMatchingEngine(registry presence.Registry, cfg MatchingConfig, now func() time.Time, log logrus.FieldLogger) *MatchingEngine {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = defaultMaxCandidates
	}
	if now == nil {
		now = time.Now
	}
	return &MatchingEngine{registry: registry, cfg: cfg, now: now, log: log}
}

// FindCandidates returns up to maxCandidates eligible drivers nearest to the
// origin, ordered by distance and then driver id. maxCandidates <= 0 uses the
// configured default. An empty result is not an error.
func (m *MatchingEngine) FindCandidates(ctx context.Context, originLat, originLng float64, maxCandidates int) ([]Candidate, error) {
	return m.findCandidates(ctx, originLat, originLng, maxCandidates, nil)
}

// findCandidates is FindCandidates with drivers in exclude removed before truncation.
func (m *MatchingEngine) findCandidates(ctx context.Context, originLat, originLng float64, maxCandidates int, exclude map[string]struct{}) ([]Candidate, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	if maxCandidates <= 0 {
		maxCandidates = m.cfg.MaxCandidates
	}

	now := m.now()
	snapshots, err := m.registry.EligibleDrivers(ctx, presence.Query{
		Now:       now,
		Freshness: m.cfg.FreshnessWindow,
		Lat:       originLat,
		Lng:       originLng,
		RadiusKm:  m.cfg.SearchRadiusKm,
	})
	if err != nil {
		return nil, internalError("read driver presence", err)
	}

	candidates := make([]Candidate, 0, len(snapshots))
	seen := make(map[string]struct{}, len(snapshots))
	for _, p := range snapshots {
		// The registry is external; do not trust it to have filtered.
		if !p.Eligible(now, m.cfg.FreshnessWindow) {
			continue
		}
		if _, dup := seen[p.DriverID]; dup {
			continue
		}
		if _, skip := exclude[p.DriverID]; skip {
			continue
		}
		seen[p.DriverID] = struct{}{}

		d := geo.DistanceKm(originLat, originLng, p.Lat, p.Lng)
		if m.cfg.SearchRadiusKm > 0 && d > m.cfg.SearchRadiusKm {
			continue
		}
		candidates = append(candidates, Candidate{DriverID: p.DriverID, DistanceKm: d})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DistanceKm == candidates[j].DistanceKm {
			return candidates[i].DriverID < candidates[j].DriverID
		}
		return candidates[i].DistanceKm < candidates[j].DistanceKm
	})

	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	observability.MatchCandidates.Observe(float64(len(candidates)))
	m.log.WithFields(logrus.Fields{
		"eligible":   len(snapshots),
		"candidates": len(candidates),
	}).Debug("matching finished")

	return candidates, nil
}
