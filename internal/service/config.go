package service

import "time"

// DispatchConfig holds the tunables shared by intake, matching and the
// background jobs.
type DispatchConfig struct {
	OfferTTL        time.Duration
	FreshnessWindow time.Duration
	MaxCandidates   int
	SearchRadiusKm  float64
	CellPrecision   uint

	JanitorInterval    time.Duration
	JanitorBatchSize   int
	SchedulerInterval  time.Duration
	SchedulerBatchSize int
	LeaseTTL           time.Duration
}

// Matching returns the subset used by the MatchingEngine.
func (c DispatchConfig) Matching() MatchingConfig {
	return MatchingConfig{
		FreshnessWindow: c.FreshnessWindow,
		MaxCandidates:   c.MaxCandidates,
		SearchRadiusKm:  c.SearchRadiusKm,
	}
}
