package griddb

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/gridstream/gridstream/pkg/telemetry"
)

// Batch repositories. One call is one database transaction: a bulk append
// into the partitioned history table followed by a guarded upsert of the
// per-device current rows. Either every record in the batch is visible in
// both tables or none is.

var (
	vehicleHistoryColumns = []string{"vehicle_id", "soc", "kwh_delivered_dc", "battery_temp", "recorded_at", "ingested_at"}
	meterHistoryColumns   = []string{"meter_id", "kwh_consumed_ac", "voltage", "recorded_at", "ingested_at"}
)

// IngestVehicleBatch atomically persists a batch of vehicle readings.
func (s *Store) IngestVehicleBatch(ctx context.Context, batch []telemetry.VehicleReading) error {
	if len(batch) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"vehicle_readings"},
			vehicleHistoryColumns,
			pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
				r := batch[i]
				return []any{r.VehicleID, r.SoC, r.KWhDeliveredDC, r.BatteryTemp, r.RecordedAt, r.IngestedAt}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("appending vehicle history: %w", err)
		}

		latest := latestVehicleReadings(batch)
		sql, args := vehicleUpsertSQL(latest)
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("upserting vehicle current: %w", err)
		}
		return nil
	})
}

// IngestMeterBatch atomically persists a batch of meter readings.
func (s *Store) IngestMeterBatch(ctx context.Context, batch []telemetry.MeterReading) error {
	if len(batch) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"meter_readings"},
			meterHistoryColumns,
			pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
				r := batch[i]
				return []any{r.MeterID, r.KWhConsumedAC, r.Voltage, r.RecordedAt, r.IngestedAt}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("appending meter history: %w", err)
		}

		latest := latestMeterReadings(batch)
		sql, args := meterUpsertSQL(latest)
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("upserting meter current: %w", err)
		}
		return nil
	})
}

// latestVehicleReadings collapses a batch to one reading per vehicle, the
// one with the greatest recorded_at. A multi-row ON CONFLICT DO UPDATE
// cannot touch the same target row twice, so the collapse has to happen
// here rather than in the statement.
func latestVehicleReadings(batch []telemetry.VehicleReading) []telemetry.VehicleReading {
	byID := make(map[string]telemetry.VehicleReading, len(batch))
	for _, r := range batch {
		if cur, ok := byID[r.VehicleID]; !ok || r.RecordedAt.After(cur.RecordedAt) {
			byID[r.VehicleID] = r
		}
	}
	out := make([]telemetry.VehicleReading, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

func latestMeterReadings(batch []telemetry.MeterReading) []telemetry.MeterReading {
	byID := make(map[string]telemetry.MeterReading, len(batch))
	for _, r := range batch {
		if cur, ok := byID[r.MeterID]; !ok || r.RecordedAt.After(cur.RecordedAt) {
			byID[r.MeterID] = r
		}
	}
	out := make([]telemetry.MeterReading, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MeterID < out[j].MeterID })
	return out
}

// vehicleUpsertSQL builds a single multi-row upsert. The WHERE clause is
// the staleness guard: an existing row is only replaced by a strictly
// newer recorded_at, so out-of-order arrivals and out-of-order flush
// commits can never downgrade the current state.
func vehicleUpsertSQL(latest []telemetry.VehicleReading) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(latest)*5)
	b.WriteString(`INSERT INTO vehicle_current (vehicle_id, soc, kwh_delivered_dc, battery_temp, last_seen_at, updated_at) VALUES `)
	for i, r := range latest {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, now())", i*5+1, i*5+2, i*5+3, i*5+4, i*5+5)
		args = append(args, r.VehicleID, r.SoC, r.KWhDeliveredDC, r.BatteryTemp, r.RecordedAt)
	}
	b.WriteString(` ON CONFLICT (vehicle_id) DO UPDATE SET
		soc = excluded.soc,
		kwh_delivered_dc = excluded.kwh_delivered_dc,
		battery_temp = excluded.battery_temp,
		last_seen_at = excluded.last_seen_at,
		updated_at = now()
	WHERE vehicle_current.last_seen_at < excluded.last_seen_at`)
	return b.String(), args
}

func meterUpsertSQL(latest []telemetry.MeterReading) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(latest)*4)
	b.WriteString(`INSERT INTO meter_current (meter_id, kwh_consumed_ac, voltage, last_seen_at, updated_at) VALUES `)
	for i, r := range latest {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, now())", i*4+1, i*4+2, i*4+3, i*4+4)
		args = append(args, r.MeterID, r.KWhConsumedAC, r.Voltage, r.RecordedAt)
	}
	b.WriteString(` ON CONFLICT (meter_id) DO UPDATE SET
		kwh_consumed_ac = excluded.kwh_consumed_ac,
		voltage = excluded.voltage,
		last_seen_at = excluded.last_seen_at,
		updated_at = now()
	WHERE meter_current.last_seen_at < excluded.last_seen_at`)
	return b.String(), args
}
