package griddb

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
)

// RollupHourly recomputes per-device per-hour aggregates for every hour
// bucket newer than since. Re-running over the same window is idempotent:
// the upsert replaces the bucket with the freshly computed values, which
// also absorbs late rows that landed after the previous pass.
func (s *Store) RollupHourly(ctx context.Context, since time.Time) error {
	rollups := []struct {
		stats, readings, device, energy string
	}{
		{"vehicle_hourly_stats", "vehicle_readings", "vehicle_id", "kwh_delivered_dc"},
		{"meter_hourly_stats", "meter_readings", "meter_id", "kwh_consumed_ac"},
	}

	for _, r := range rollups {
		sql := fmt.Sprintf(
			`INSERT INTO %s (device_id, hour_bucket, energy, sample_count)
			 SELECT %s, date_trunc('hour', recorded_at), sum(%s), count(*)
			 FROM %s
			 WHERE recorded_at >= $1
			 GROUP BY 1, 2
			 ON CONFLICT (device_id, hour_bucket) DO UPDATE SET
			 	energy = excluded.energy,
			 	sample_count = excluded.sample_count`,
			r.stats, r.device, r.energy, r.readings,
		)
		tag, err := s.pool.Exec(ctx, sql, since)
		if err != nil {
			return fmt.Errorf("rolling up %s: %w", r.stats, err)
		}
		level.Debug(s.logger).Log("msg", "hourly rollup", "table", r.stats, "rows", tag.RowsAffected())
	}
	return nil
}

// RefreshPerformanceSummary recomputes the materialized 24h performance
// view. CONCURRENTLY keeps readers unblocked; it requires the unique index
// on vehicle_id and a populated view, both guaranteed by the schema DDL.
func (s *Store) RefreshPerformanceSummary(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY vehicle_performance_24h`); err != nil {
		return fmt.Errorf("refreshing performance summary: %w", err)
	}
	return nil
}
