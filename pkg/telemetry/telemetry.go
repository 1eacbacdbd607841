// Package telemetry holds the core reading types shared by the write path,
// the storage engine and the read API.
package telemetry

import (
	"time"

	"github.com/shopspring/decimal"
)

// Class discriminates the two device populations. Every buffer, repository
// and rollup table exists once per class.
type Class string

const (
	ClassVehicle Class = "vehicle"
	ClassMeter   Class = "meter"
)

// VehicleReading is one telemetry sample from one vehicle. Numeric fields
// are fixed-point decimals all the way to the NUMERIC columns; they are
// never narrowed to binary floating point.
type VehicleReading struct {
	VehicleID      string          `json:"vehicle_id"`
	SoC            decimal.Decimal `json:"soc"`
	KWhDeliveredDC decimal.Decimal `json:"kwh_delivered_dc"`
	BatteryTemp    decimal.Decimal `json:"battery_temp"`
	RecordedAt     time.Time       `json:"recorded_at"`
	IngestedAt     time.Time       `json:"ingested_at,omitempty"`
}

// MeterReading is one telemetry sample from one smart meter.
type MeterReading struct {
	MeterID       string          `json:"meter_id"`
	KWhConsumedAC decimal.Decimal `json:"kwh_consumed_ac"`
	Voltage       decimal.Decimal `json:"voltage"`
	RecordedAt    time.Time       `json:"recorded_at"`
	IngestedAt    time.Time       `json:"ingested_at,omitempty"`
}

// VehicleCurrent is the latest persisted state of one vehicle. LastSeenAt
// is the greatest recorded_at ever persisted for the vehicle, regardless of
// arrival order.
type VehicleCurrent struct {
	VehicleID      string          `json:"vehicle_id"`
	SoC            decimal.Decimal `json:"soc"`
	KWhDeliveredDC decimal.Decimal `json:"kwh_delivered_dc"`
	BatteryTemp    decimal.Decimal `json:"battery_temp"`
	LastSeenAt     time.Time       `json:"last_seen_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// MeterCurrent is the latest persisted state of one meter.
type MeterCurrent struct {
	MeterID       string          `json:"meter_id"`
	KWhConsumedAC decimal.Decimal `json:"kwh_consumed_ac"`
	Voltage       decimal.Decimal `json:"voltage"`
	LastSeenAt    time.Time       `json:"last_seen_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// VehicleMeterLink associates a vehicle with the meter at its charging
// station. A vehicle has at most one current link.
type VehicleMeterLink struct {
	VehicleID string    `json:"vehicle_id"`
	MeterID   string    `json:"meter_id"`
	LinkedAt  time.Time `json:"linked_at"`
}

// HourlyStat is one per-device per-hour aggregate row. Energy is the sum of
// the class's energy column over the hour, SampleCount the number of
// readings that contributed.
type HourlyStat struct {
	DeviceID    string          `json:"device_id"`
	HourBucket  time.Time       `json:"hour_bucket"`
	Energy      decimal.Decimal `json:"energy"`
	SampleCount int64           `json:"sample_count"`
}

// HourlySummary is one fleet-wide bucket: hourly stats grouped over all
// devices of a class.
type HourlySummary struct {
	HourBucket  time.Time       `json:"hour_bucket"`
	Energy      decimal.Decimal `json:"energy"`
	DeviceCount int64           `json:"device_count"`
	SampleCount int64           `json:"sample_count"`
}

// VehiclePerformance is the joined 24h view over a vehicle and its linked
// meter. Efficiency is 100 * DCDelivered / ACConsumed rounded to two
// fractional digits, zero when ACConsumed is zero.
type VehiclePerformance struct {
	VehicleID   string          `json:"vehicle_id"`
	MeterID     string          `json:"meter_id"`
	DCDelivered decimal.Decimal `json:"dc_delivered_kwh"`
	ACConsumed  decimal.Decimal `json:"ac_consumed_kwh"`
	Efficiency  decimal.Decimal `json:"efficiency_pct"`
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
}

// EfficiencyPct implements the ratio contract shared by the live
// aggregation and the materialized summary.
func EfficiencyPct(dc, ac decimal.Decimal) decimal.Decimal {
	if ac.IsZero() {
		return decimal.Zero
	}
	return dc.Mul(decimal.NewFromInt(100)).DivRound(ac, 2)
}
