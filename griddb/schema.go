package griddb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log/level"
)

// The reading tables are range-partitioned on recorded_at at monthly
// granularity. The primary key leads with recorded_at so the key stays
// partition-local; there is deliberately no uniqueness on
// (device_id, recorded_at) — duplicate suppression belongs to the sender,
// and a global unique index would not survive 28M inserts/day.
//
// The BRIN indexes stay effective only while physical row order correlates
// with time, which holds because readings arrive near-real-time and
// backfill is unsupported.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS vehicle_readings (
	id               bigint GENERATED ALWAYS AS IDENTITY,
	vehicle_id       varchar(64) NOT NULL,
	soc              numeric(5,2) NOT NULL CHECK (soc >= 0 AND soc <= 100),
	kwh_delivered_dc numeric(10,4) NOT NULL CHECK (kwh_delivered_dc >= 0),
	battery_temp     numeric(5,2) NOT NULL,
	recorded_at      timestamptz NOT NULL,
	ingested_at      timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (recorded_at, id)
) PARTITION BY RANGE (recorded_at);

CREATE TABLE IF NOT EXISTS vehicle_readings_default
	PARTITION OF vehicle_readings DEFAULT;

CREATE INDEX IF NOT EXISTS vehicle_readings_device_recorded_idx
	ON vehicle_readings (vehicle_id, recorded_at DESC);
CREATE INDEX IF NOT EXISTS vehicle_readings_recorded_brin
	ON vehicle_readings USING brin (recorded_at);
CREATE INDEX IF NOT EXISTS vehicle_readings_ingested_brin
	ON vehicle_readings USING brin (ingested_at);

CREATE TABLE IF NOT EXISTS meter_readings (
	id              bigint GENERATED ALWAYS AS IDENTITY,
	meter_id        varchar(64) NOT NULL,
	kwh_consumed_ac numeric(10,4) NOT NULL CHECK (kwh_consumed_ac >= 0),
	voltage         numeric(6,2) NOT NULL CHECK (voltage >= 0),
	recorded_at     timestamptz NOT NULL,
	ingested_at     timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (recorded_at, id)
) PARTITION BY RANGE (recorded_at);

CREATE TABLE IF NOT EXISTS meter_readings_default
	PARTITION OF meter_readings DEFAULT;

CREATE INDEX IF NOT EXISTS meter_readings_device_recorded_idx
	ON meter_readings (meter_id, recorded_at DESC);
CREATE INDEX IF NOT EXISTS meter_readings_recorded_brin
	ON meter_readings USING brin (recorded_at);
CREATE INDEX IF NOT EXISTS meter_readings_ingested_brin
	ON meter_readings USING brin (ingested_at);

-- Hot store: one row per device, point lookups only. Small enough to live
-- in shared buffers, so no secondary indexes.
CREATE TABLE IF NOT EXISTS vehicle_current (
	vehicle_id       varchar(64) PRIMARY KEY,
	soc              numeric(5,2) NOT NULL,
	kwh_delivered_dc numeric(10,4) NOT NULL,
	battery_temp     numeric(5,2) NOT NULL,
	last_seen_at     timestamptz NOT NULL,
	updated_at       timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS meter_current (
	meter_id        varchar(64) PRIMARY KEY,
	kwh_consumed_ac numeric(10,4) NOT NULL,
	voltage         numeric(6,2) NOT NULL,
	last_seen_at    timestamptz NOT NULL,
	updated_at      timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS vehicle_meter_links (
	vehicle_id varchar(64) PRIMARY KEY REFERENCES vehicle_current (vehicle_id),
	meter_id   varchar(64) NOT NULL REFERENCES meter_current (meter_id),
	linked_at  timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS vehicle_meter_links_meter_idx
	ON vehicle_meter_links (meter_id);

CREATE TABLE IF NOT EXISTS vehicle_hourly_stats (
	device_id    varchar(64) NOT NULL,
	hour_bucket  timestamptz NOT NULL,
	energy       numeric(14,4) NOT NULL,
	sample_count bigint NOT NULL,
	PRIMARY KEY (device_id, hour_bucket)
);
CREATE INDEX IF NOT EXISTS vehicle_hourly_stats_hour_idx
	ON vehicle_hourly_stats (hour_bucket);

CREATE TABLE IF NOT EXISTS meter_hourly_stats (
	device_id    varchar(64) NOT NULL,
	hour_bucket  timestamptz NOT NULL,
	energy       numeric(14,4) NOT NULL,
	sample_count bigint NOT NULL,
	PRIMARY KEY (device_id, hour_bucket)
);
CREATE INDEX IF NOT EXISTS meter_hourly_stats_hour_idx
	ON meter_hourly_stats (hour_bucket);
`

const performanceViewDDL = `
CREATE MATERIALIZED VIEW IF NOT EXISTS vehicle_performance_24h AS
SELECT l.vehicle_id,
       l.meter_id,
       coalesce(v.dc, 0) AS dc_delivered_kwh,
       coalesce(m.ac, 0) AS ac_consumed_kwh,
       CASE WHEN coalesce(m.ac, 0) = 0 THEN 0
            ELSE round(100 * coalesce(v.dc, 0) / m.ac, 2)
       END AS efficiency_pct,
       now() - interval '24 hours' AS window_start,
       now() AS window_end
FROM vehicle_meter_links l
LEFT JOIN LATERAL (
	SELECT sum(r.kwh_delivered_dc) AS dc
	FROM vehicle_readings r
	WHERE r.vehicle_id = l.vehicle_id
	  AND r.recorded_at >= now() - interval '24 hours'
) v ON true
LEFT JOIN LATERAL (
	SELECT sum(r.kwh_consumed_ac) AS ac
	FROM meter_readings r
	WHERE r.meter_id = l.meter_id
	  AND r.recorded_at >= now() - interval '24 hours'
) m ON true;

CREATE UNIQUE INDEX IF NOT EXISTS vehicle_performance_24h_vehicle_idx
	ON vehicle_performance_24h (vehicle_id);
`

// readingTables are the partitioned parents, in the order maintenance
// touches them.
var readingTables = []string{"vehicle_readings", "meter_readings"}

// SetupSchema creates tables, indexes and the current and next monthly
// partitions. Idempotent.
func (s *Store) SetupSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if _, err := s.pool.Exec(ctx, performanceViewDDL); err != nil {
		return fmt.Errorf("creating performance view: %w", err)
	}
	return s.EnsurePartitions(ctx, time.Now().UTC(), 2)
}

// partitionName returns <table>_YYYY_MM for the month containing t.
// Retention tooling detaches by this name; do not change the format.
func partitionName(table string, t time.Time) string {
	return fmt.Sprintf("%s_%04d_%02d", table, t.Year(), int(t.Month()))
}

// monthStart truncates t to the first instant of its month, UTC.
func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// parsePartitionMonth recovers the month bound from a partition name.
// Returns false for the default partition and anything else that does not
// match the naming contract.
func parsePartitionMonth(table, name string) (time.Time, bool) {
	suffix, ok := strings.CutPrefix(name, table+"_")
	if !ok {
		return time.Time{}, false
	}
	m, err := time.Parse("2006_01", suffix)
	if err != nil {
		return time.Time{}, false
	}
	return m, true
}

// EnsurePartitions creates monthly partitions for the month containing now
// and `ahead` months beyond it, on both reading tables. Partitions must
// exist before rows arrive; rows landing in the default partition instead
// are an operational alarm, not a data loss.
func (s *Store) EnsurePartitions(ctx context.Context, now time.Time, ahead int) error {
	for _, table := range readingTables {
		for i := 0; i <= ahead; i++ {
			from := monthStart(now).AddDate(0, i, 0)
			to := from.AddDate(0, 1, 0)
			ddl := fmt.Sprintf(
				`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
				partitionName(table, from), table,
				from.Format(time.RFC3339), to.Format(time.RFC3339),
			)
			if _, err := s.pool.Exec(ctx, ddl); err != nil {
				return fmt.Errorf("creating partition %s: %w", partitionName(table, from), err)
			}
		}
	}
	level.Debug(s.logger).Log("msg", "partitions ensured", "ahead", ahead)
	return nil
}
