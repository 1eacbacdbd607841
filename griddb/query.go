package griddb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gridstream/gridstream/pkg/telemetry"
)

const (
	defaultHistoryLimit = 1000
	maxHistoryLimit     = 10000
)

// VehicleLive returns the current row for one vehicle, or nil when the
// vehicle has never been seen. Unknown devices are not an error so that
// dashboards polling a fixed fleet stay stable.
func (s *Store) VehicleLive(ctx context.Context, vehicleID string) (*telemetry.VehicleCurrent, error) {
	var c telemetry.VehicleCurrent
	err := s.pool.QueryRow(ctx,
		`SELECT vehicle_id, soc, kwh_delivered_dc, battery_temp, last_seen_at, updated_at
		 FROM vehicle_current WHERE vehicle_id = $1`,
		vehicleID,
	).Scan(&c.VehicleID, &c.SoC, &c.KWhDeliveredDC, &c.BatteryTemp, &c.LastSeenAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying vehicle current: %w", err)
	}
	return &c, nil
}

// MeterLive returns the current row for one meter, or nil when unknown.
func (s *Store) MeterLive(ctx context.Context, meterID string) (*telemetry.MeterCurrent, error) {
	var c telemetry.MeterCurrent
	err := s.pool.QueryRow(ctx,
		`SELECT meter_id, kwh_consumed_ac, voltage, last_seen_at, updated_at
		 FROM meter_current WHERE meter_id = $1`,
		meterID,
	).Scan(&c.MeterID, &c.KWhConsumedAC, &c.Voltage, &c.LastSeenAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying meter current: %w", err)
	}
	return &c, nil
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// VehicleHistory returns readings for one vehicle in [from, to), newest
// first. The range is mandatory: without it the planner cannot prune
// partitions and the scan cost is unbounded.
func (s *Store) VehicleHistory(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]telemetry.VehicleReading, error) {
	if from.IsZero() || to.IsZero() {
		return nil, ErrMissingRange
	}
	rows, err := s.pool.Query(ctx,
		`SELECT vehicle_id, soc, kwh_delivered_dc, battery_temp, recorded_at, ingested_at
		 FROM vehicle_readings
		 WHERE vehicle_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		 ORDER BY recorded_at DESC
		 LIMIT $4`,
		vehicleID, from, to, clampHistoryLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying vehicle history: %w", err)
	}
	defer rows.Close()

	out := []telemetry.VehicleReading{}
	for rows.Next() {
		var r telemetry.VehicleReading
		if err := rows.Scan(&r.VehicleID, &r.SoC, &r.KWhDeliveredDC, &r.BatteryTemp, &r.RecordedAt, &r.IngestedAt); err != nil {
			return nil, fmt.Errorf("scanning vehicle history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MeterHistory returns readings for one meter in [from, to), newest first.
func (s *Store) MeterHistory(ctx context.Context, meterID string, from, to time.Time, limit int) ([]telemetry.MeterReading, error) {
	if from.IsZero() || to.IsZero() {
		return nil, ErrMissingRange
	}
	rows, err := s.pool.Query(ctx,
		`SELECT meter_id, kwh_consumed_ac, voltage, recorded_at, ingested_at
		 FROM meter_readings
		 WHERE meter_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		 ORDER BY recorded_at DESC
		 LIMIT $4`,
		meterID, from, to, clampHistoryLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying meter history: %w", err)
	}
	defer rows.Close()

	out := []telemetry.MeterReading{}
	for rows.Next() {
		var r telemetry.MeterReading
		if err := rows.Scan(&r.MeterID, &r.KWhConsumedAC, &r.Voltage, &r.RecordedAt, &r.IngestedAt); err != nil {
			return nil, fmt.Errorf("scanning meter history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func hourlyStatsTable(class telemetry.Class) string {
	if class == telemetry.ClassMeter {
		return "meter_hourly_stats"
	}
	return "vehicle_hourly_stats"
}

// FleetSummary aggregates the rollup table fleet-wide, one bucket per hour
// in [from, to).
func (s *Store) FleetSummary(ctx context.Context, class telemetry.Class, from, to time.Time) ([]telemetry.HourlySummary, error) {
	if from.IsZero() || to.IsZero() {
		return nil, ErrMissingRange
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT hour_bucket, sum(energy), count(DISTINCT device_id), sum(sample_count)
		 FROM %s
		 WHERE hour_bucket >= $1 AND hour_bucket < $2
		 GROUP BY hour_bucket
		 ORDER BY hour_bucket`, hourlyStatsTable(class)),
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("querying fleet summary: %w", err)
	}
	defer rows.Close()
	return scanHourlySummaries(rows)
}

// Dashboard24h is the fleet summary over the trailing 24 hours.
func (s *Store) Dashboard24h(ctx context.Context, class telemetry.Class, now time.Time) ([]telemetry.HourlySummary, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT hour_bucket, sum(energy), count(DISTINCT device_id), sum(sample_count)
		 FROM %s
		 WHERE hour_bucket >= $1
		 GROUP BY hour_bucket
		 ORDER BY hour_bucket`, hourlyStatsTable(class)),
		now.Add(-24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("querying 24h dashboard: %w", err)
	}
	defer rows.Close()
	return scanHourlySummaries(rows)
}

func scanHourlySummaries(rows pgx.Rows) ([]telemetry.HourlySummary, error) {
	out := []telemetry.HourlySummary{}
	for rows.Next() {
		var h telemetry.HourlySummary
		if err := rows.Scan(&h.HourBucket, &h.Energy, &h.DeviceCount, &h.SampleCount); err != nil {
			return nil, fmt.Errorf("scanning hourly summary: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetLink returns the vehicle's meter link, or ErrNoLink.
func (s *Store) GetLink(ctx context.Context, vehicleID string) (*telemetry.VehicleMeterLink, error) {
	var l telemetry.VehicleMeterLink
	err := s.pool.QueryRow(ctx,
		`SELECT vehicle_id, meter_id, linked_at FROM vehicle_meter_links WHERE vehicle_id = $1`,
		vehicleID,
	).Scan(&l.VehicleID, &l.MeterID, &l.LinkedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoLink
	}
	if err != nil {
		return nil, fmt.Errorf("querying link: %w", err)
	}
	return &l, nil
}

// PutLink creates or replaces the vehicle's meter link.
func (s *Store) PutLink(ctx context.Context, vehicleID, meterID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO vehicle_meter_links (vehicle_id, meter_id, linked_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (vehicle_id) DO UPDATE SET meter_id = excluded.meter_id, linked_at = now()`,
		vehicleID, meterID,
	)
	if err != nil {
		return fmt.Errorf("upserting link: %w", err)
	}
	return nil
}

// VehiclePerformance24h resolves the vehicle's link and aggregates the two
// reading streams over the trailing 24 hours.
func (s *Store) VehiclePerformance24h(ctx context.Context, vehicleID string, now time.Time) (*telemetry.VehiclePerformance, error) {
	link, err := s.GetLink(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	from := now.Add(-24 * time.Hour)
	p := telemetry.VehiclePerformance{
		VehicleID:   link.VehicleID,
		MeterID:     link.MeterID,
		WindowStart: from,
		WindowEnd:   now,
	}

	err = s.pool.QueryRow(ctx,
		`SELECT coalesce(sum(kwh_delivered_dc), 0)
		 FROM vehicle_readings WHERE vehicle_id = $1 AND recorded_at >= $2 AND recorded_at < $3`,
		vehicleID, from, now,
	).Scan(&p.DCDelivered)
	if err != nil {
		return nil, fmt.Errorf("aggregating dc delivered: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT coalesce(sum(kwh_consumed_ac), 0)
		 FROM meter_readings WHERE meter_id = $1 AND recorded_at >= $2 AND recorded_at < $3`,
		link.MeterID, from, now,
	).Scan(&p.ACConsumed)
	if err != nil {
		return nil, fmt.Errorf("aggregating ac consumed: %w", err)
	}

	p.Efficiency = telemetry.EfficiencyPct(p.DCDelivered, p.ACConsumed)
	return &p, nil
}

// VehiclePerformanceSummary serves the materialized 24h row, refreshed
// out-of-band by maintenance. ErrNoLink when the vehicle is absent.
func (s *Store) VehiclePerformanceSummary(ctx context.Context, vehicleID string) (*telemetry.VehiclePerformance, error) {
	var p telemetry.VehiclePerformance
	err := s.pool.QueryRow(ctx,
		`SELECT vehicle_id, meter_id, dc_delivered_kwh, ac_consumed_kwh, efficiency_pct, window_start, window_end
		 FROM vehicle_performance_24h WHERE vehicle_id = $1`,
		vehicleID,
	).Scan(&p.VehicleID, &p.MeterID, &p.DCDelivered, &p.ACConsumed, &p.Efficiency, &p.WindowStart, &p.WindowEnd)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoLink
	}
	if err != nil {
		return nil, fmt.Errorf("querying performance summary: %w", err)
	}
	return &p, nil
}
