// Package ingester decouples request acceptance from database round-trips.
// Readings are staged in per-class in-memory buffers and flushed in large
// batches, on whichever of a size or time trigger fires first.
package ingester

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"

	"github.com/gridstream/gridstream/pkg/telemetry"
)

const (
	vehicleClass = string(telemetry.ClassVehicle)
	meterClass   = string(telemetry.ClassMeter)
)

// Store is the batch repository contract the ingester flushes into.
type Store interface {
	IngestVehicleBatch(ctx context.Context, batch []telemetry.VehicleReading) error
	IngestMeterBatch(ctx context.Context, batch []telemetry.MeterReading) error
}

// Ingester owns the two class buffers and the shared flush ticker.
type Ingester struct {
	services.Service

	cfg    Config
	logger log.Logger
	store  Store

	vehicles *buffer[telemetry.VehicleReading]
	meters   *buffer[telemetry.MeterReading]
}

// New creates an Ingester. Call StartAsync/AwaitRunning (or run it under a
// services.Manager) before pushing.
func New(cfg Config, store Store, logger log.Logger) (*Ingester, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	i := &Ingester{
		cfg:      cfg,
		logger:   log.With(logger, "component", "ingester"),
		store:    store,
		vehicles: newBuffer[telemetry.VehicleReading](cfg.FlushSize),
		meters:   newBuffer[telemetry.MeterReading](cfg.FlushSize),
	}
	i.Service = services.NewBasicService(nil, i.running, i.stopping)
	return i, nil
}

// PushVehicle stages one vehicle reading. Never blocks on the database.
func (i *Ingester) PushVehicle(r telemetry.VehicleReading) {
	i.vehicles.push(r, i.cfg.FlushSize)
	metricBufferDepth.WithLabelValues(vehicleClass).Set(float64(i.vehicles.depth()))
}

// PushMeter stages one meter reading. Never blocks on the database.
func (i *Ingester) PushMeter(r telemetry.MeterReading) {
	i.meters.push(r, i.cfg.FlushSize)
	metricBufferDepth.WithLabelValues(meterClass).Set(float64(i.meters.depth()))
}

// Depths reports the current per-class buffer depth. Sustained growth
// means the database cannot keep up; shed load upstream.
func (i *Ingester) Depths() (vehicles, meters int) {
	return i.vehicles.depth(), i.meters.depth()
}

func (i *Ingester) running(ctx context.Context) error {
	ticker := time.NewTicker(i.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			i.flushVehicles()
			i.flushMeters()
		case <-i.vehicles.trigger:
			i.flushVehicles()
		case <-i.meters.trigger:
			i.flushMeters()
		case <-ctx.Done():
			return nil
		}
	}
}

// stopping performs the final best-effort drain. Records that fail this
// flush are lost; ingestion is accepted-before-persisted by design.
func (i *Ingester) stopping(_ error) error {
	i.flushVehicles()
	i.flushMeters()

	if v := i.vehicles.depth(); v > 0 {
		metricRecordsDiscarded.WithLabelValues(vehicleClass).Add(float64(v))
		level.Error(i.logger).Log("msg", "discarding records on shutdown", "class", vehicleClass, "count", v)
	}
	if m := i.meters.depth(); m > 0 {
		metricRecordsDiscarded.WithLabelValues(meterClass).Add(float64(m))
		level.Error(i.logger).Log("msg", "discarding records on shutdown", "class", meterClass, "count", m)
	}
	return nil
}

// flushVehicles swaps the vehicle buffer and commits the detached batch.
// The repository call runs without any buffer lock held; flush failures
// re-enqueue the whole batch for the next trigger.
func (i *Ingester) flushVehicles() {
	batch := i.vehicles.swap()
	if len(batch) == 0 {
		return
	}

	// Deliberately not the service context: an in-flight transaction is
	// never cancelled, the database statement timeout caps it instead.
	start := time.Now()
	err := i.store.IngestVehicleBatch(context.Background(), batch)
	metricFlushDuration.WithLabelValues(vehicleClass).Observe(time.Since(start).Seconds())
	if err != nil {
		metricFailedFlushes.WithLabelValues(vehicleClass).Inc()
		i.vehicles.requeue(batch)
		level.Error(i.logger).Log("msg", "flush failed, batch re-enqueued", "class", vehicleClass, "count", len(batch), "err", err)
	} else {
		metricRecordsFlushed.WithLabelValues(vehicleClass).Add(float64(len(batch)))
	}
	metricBufferDepth.WithLabelValues(vehicleClass).Set(float64(i.vehicles.depth()))
}

func (i *Ingester) flushMeters() {
	batch := i.meters.swap()
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	err := i.store.IngestMeterBatch(context.Background(), batch)
	metricFlushDuration.WithLabelValues(meterClass).Observe(time.Since(start).Seconds())
	if err != nil {
		metricFailedFlushes.WithLabelValues(meterClass).Inc()
		i.meters.requeue(batch)
		level.Error(i.logger).Log("msg", "flush failed, batch re-enqueued", "class", meterClass, "count", len(batch), "err", err)
	} else {
		metricRecordsFlushed.WithLabelValues(meterClass).Add(float64(len(batch)))
	}
	metricBufferDepth.WithLabelValues(meterClass).Set(float64(i.meters.depth()))
}
