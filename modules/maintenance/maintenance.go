// Package maintenance owns the scheduled storage jobs: provisioning the
// next monthly partitions, dropping expired ones, recomputing the hourly
// rollups and refreshing the materialized 24h performance summary.
package maintenance

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricJobFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridstream",
	Name:      "maintenance_job_failures_total",
	Help:      "Scheduled maintenance runs that returned an error.",
}, []string{"job"})

// Store is the slice of the storage engine maintenance drives.
type Store interface {
	EnsurePartitions(ctx context.Context, now time.Time, ahead int) error
	EnforceRetention(ctx context.Context, now time.Time, horizon time.Duration) error
	RollupHourly(ctx context.Context, since time.Time) error
	RefreshPerformanceSummary(ctx context.Context) error
}

// Maintainer runs the jobs on two tickers. Failures are logged and
// retried on the next tick; a missed rollup pass only delays freshness.
type Maintainer struct {
	services.Service

	cfg    Config
	store  Store
	logger log.Logger
}

// New creates a Maintainer over store.
func New(cfg Config, store Store, logger log.Logger) (*Maintainer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m := &Maintainer{
		cfg:    cfg,
		store:  store,
		logger: log.With(logger, "component", "maintenance"),
	}
	m.Service = services.NewBasicService(m.starting, m.running, nil)
	return m, nil
}

// starting provisions partitions once up front so the write path never
// races the first tick.
func (m *Maintainer) starting(ctx context.Context) error {
	if !m.cfg.Enabled {
		return nil
	}
	return m.store.EnsurePartitions(ctx, time.Now().UTC(), m.cfg.PartitionsAhead)
}

func (m *Maintainer) running(ctx context.Context) error {
	if !m.cfg.Enabled {
		<-ctx.Done()
		return nil
	}

	rollup := time.NewTicker(m.cfg.RollupInterval)
	defer rollup.Stop()
	partitions := time.NewTicker(m.cfg.PartitionInterval)
	defer partitions.Stop()

	for {
		select {
		case <-rollup.C:
			m.runJob(ctx, "rollup_hourly", func(ctx context.Context) error {
				return m.store.RollupHourly(ctx, time.Now().UTC().Add(-m.cfg.RollupLookback))
			})
			m.runJob(ctx, "refresh_performance", m.store.RefreshPerformanceSummary)

		case <-partitions.C:
			m.runJob(ctx, "ensure_partitions", func(ctx context.Context) error {
				return m.store.EnsurePartitions(ctx, time.Now().UTC(), m.cfg.PartitionsAhead)
			})
			m.runJob(ctx, "enforce_retention", func(ctx context.Context) error {
				return m.store.EnforceRetention(ctx, time.Now().UTC(), m.cfg.Retention)
			})

		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Maintainer) runJob(ctx context.Context, name string, job func(context.Context) error) {
	start := time.Now()
	if err := job(ctx); err != nil {
		metricJobFailures.WithLabelValues(name).Inc()
		level.Error(m.logger).Log("msg", "maintenance job failed", "job", name, "err", err)
		return
	}
	level.Debug(m.logger).Log("msg", "maintenance job done", "job", name, "duration", time.Since(start))
}
