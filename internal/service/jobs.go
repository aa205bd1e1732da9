package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/observability"
)

// LeaseManager hands out named, expiring leases so a periodic job runs on
// one instance per tick.
type LeaseManager interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

const (
	JobOfferJanitor = "offer-janitor"
	JobScheduler    = "scheduled-dispatch"
)

// JobFunc does one unit of periodic work and reports how many items it handled.
type JobFunc func(ctx context.Context) (int, error)

// PeriodicJob runs a JobFunc on a fixed interval until its context ends.
type PeriodicJob struct {
	Name     string
	Interval time.Duration
	LeaseTTL time.Duration // defaults to Interval
	Leases   LeaseManager  // nil runs on every tick
	Run      JobFunc
	Log      logrus.FieldLogger
}

// Start blocks, running the job every Interval until ctx is cancelled.
func (j PeriodicJob) Start(ctx context.Context) {
	if j.Interval <= 0 {
		return
	}
	ttl := j.LeaseTTL
	if ttl <= 0 {
		ttl = j.Interval
	}
	log := j.Log.WithField("job", j.Name)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	held := false
	defer func() {
		if held && j.Leases != nil {
			// ctx is already done here.
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := j.Leases.Release(releaseCtx, j.Name); err != nil {
				log.WithError(err).Warn("failed to release job lease")
			}
		}
	}()

	log.WithField("interval", j.Interval.String()).Info("job started")
	for {
		select {
		case <-ctx.Done():
			log.Info("job stopped")
			return
		case <-ticker.C:
			if j.Leases != nil {
				ok, err := j.Leases.Acquire(ctx, j.Name, ttl)
				if err != nil {
					observability.JobRuns.WithLabelValues(j.Name, "lease_error").Inc()
					log.WithError(err).Warn("failed to acquire job lease")
					continue
				}
				if !ok {
					observability.JobRuns.WithLabelValues(j.Name, "skipped").Inc()
					continue
				}
				held = true
			}
			j.tick(ctx, log)
		}
	}
}

func (j PeriodicJob) tick(ctx context.Context, log logrus.FieldLogger) {
	n, err := j.Run(ctx)
	if err != nil {
		observability.JobRuns.WithLabelValues(j.Name, "error").Inc()
		log.WithError(err).Error("job run failed")
		return
	}
	observability.JobRuns.WithLabelValues(j.Name, "ok").Inc()
	if n > 0 {
		log.WithField("items", n).Debug("job run finished")
	}
}

// RunExpiryJanitor sweeps lapsed offers every cfg.JanitorInterval until ctx ends.
func (m *OfferManager) RunExpiryJanitor(ctx context.Context, cfg DispatchConfig, leases LeaseManager) {
	PeriodicJob{
		Name:     JobOfferJanitor,
		Interval: cfg.JanitorInterval,
		LeaseTTL: cfg.LeaseTTL,
		Leases:   leases,
		Log:      m.log,
		Run: func(ctx context.Context) (int, error) {
			return m.ExpireLapsed(ctx, cfg.JanitorBatchSize)
		},
	}.Start(ctx)
}

// RunScheduler dispatches due scheduled rides every SchedulerInterval until ctx ends.
func (s *RideService) RunScheduler(ctx context.Context, leases LeaseManager) {
	PeriodicJob{
		Name:     JobScheduler,
		Interval: s.cfg.SchedulerInterval,
		LeaseTTL: s.cfg.LeaseTTL,
		Leases:   leases,
		Log:      s.log,
		Run: func(ctx context.Context) (int, error) {
			return s.DispatchDueScheduled(ctx, s.cfg.SchedulerBatchSize)
		},
	}.Start(ctx)
}
