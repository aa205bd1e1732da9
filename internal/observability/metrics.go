package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ride_dispatch"

var (
	RidesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rides_created_total", Help: "Rides created by initial status"},
		[]string{"status"},
	)
	MatchCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "match_candidates",
		Help:      "Candidates returned per matching run",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
	})
	MatchesWithoutCandidates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "matches_without_candidates_total", Help: "Matching runs that found no eligible driver",
	})
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "match_latency_seconds", Help: "Matching latency seconds",
	})
	OffersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "offers_created_total", Help: "Offers sent to drivers",
	})
	OffersExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "offers_expired_total", Help: "Offers moved to EXPIRED by reason"},
		[]string{"reason"},
	)
	AcceptAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "accept_attempts_total", Help: "Offer accept attempts by result"},
		[]string{"result"},
	)
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Applied ride status transitions by target"},
		[]string{"to"},
	)
	EventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "event_publish_failures_total", Help: "Ride events a sink failed to deliver"},
		[]string{"sink"},
	)
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "job_runs_total", Help: "Background job runs by job and outcome"},
		[]string{"job", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
