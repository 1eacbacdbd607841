// Package querier serves the analytics read contracts: hot-table point
// lookups, range-bounded history scans, rollup summaries and the joined
// 24h vehicle performance view.
package querier

import (
	"context"
	"time"

	"github.com/go-kit/log"

	"github.com/gridstream/gridstream/pkg/telemetry"
)

// Store enumerates the read contracts and the storage each maps to.
type Store interface {
	VehicleLive(ctx context.Context, vehicleID string) (*telemetry.VehicleCurrent, error)
	MeterLive(ctx context.Context, meterID string) (*telemetry.MeterCurrent, error)
	VehicleHistory(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]telemetry.VehicleReading, error)
	MeterHistory(ctx context.Context, meterID string, from, to time.Time, limit int) ([]telemetry.MeterReading, error)
	FleetSummary(ctx context.Context, class telemetry.Class, from, to time.Time) ([]telemetry.HourlySummary, error)
	Dashboard24h(ctx context.Context, class telemetry.Class, now time.Time) ([]telemetry.HourlySummary, error)
	GetLink(ctx context.Context, vehicleID string) (*telemetry.VehicleMeterLink, error)
	PutLink(ctx context.Context, vehicleID, meterID string) error
	VehiclePerformance24h(ctx context.Context, vehicleID string, now time.Time) (*telemetry.VehiclePerformance, error)
	VehiclePerformanceSummary(ctx context.Context, vehicleID string) (*telemetry.VehiclePerformance, error)
}

// Querier answers read requests. It holds no state beyond the store.
type Querier struct {
	store  Store
	logger log.Logger
	now    func() time.Time
}

// New creates a Querier over store.
func New(store Store, logger log.Logger) *Querier {
	return &Querier{
		store:  store,
		logger: log.With(logger, "component", "querier"),
		now:    time.Now,
	}
}
