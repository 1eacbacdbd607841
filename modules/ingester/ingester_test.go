package ingester

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/services"
	"github.com/stretchr/testify/require"

	"github.com/gridstream/gridstream/pkg/telemetry"
)

type mockStore struct {
	mtx      sync.Mutex
	vehicles [][]telemetry.VehicleReading
	meters   [][]telemetry.MeterReading
	failNext int
}

func (m *mockStore) IngestVehicleBatch(_ context.Context, batch []telemetry.VehicleReading) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return errors.New("db unavailable")
	}
	cp := make([]telemetry.VehicleReading, len(batch))
	copy(cp, batch)
	m.vehicles = append(m.vehicles, cp)
	return nil
}

func (m *mockStore) IngestMeterBatch(_ context.Context, batch []telemetry.MeterReading) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return errors.New("db unavailable")
	}
	cp := make([]telemetry.MeterReading, len(batch))
	copy(cp, batch)
	m.meters = append(m.meters, cp)
	return nil
}

func (m *mockStore) vehicleCount() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	n := 0
	for _, b := range m.vehicles {
		n += len(b)
	}
	return n
}

func vr(id string, at time.Time) telemetry.VehicleReading {
	return telemetry.VehicleReading{VehicleID: id, RecordedAt: at, IngestedAt: time.Now()}
}

func testConfig() Config {
	return Config{FlushSize: 500, FlushInterval: 2 * time.Second}
}

func TestSizeTriggerFiresOncePerCrossing(t *testing.T) {
	i, err := New(testConfig(), &mockStore{}, log.NewNopLogger())
	require.NoError(t, err)

	now := time.Now()
	for n := 0; n < 500; n++ {
		i.PushVehicle(vr("V001", now))
	}
	require.Len(t, i.vehicles.trigger, 1)

	// The 501st record crosses again before any flush ran; the pending
	// signal absorbs it, so still exactly one flush is scheduled.
	i.PushVehicle(vr("V001", now))
	require.Len(t, i.vehicles.trigger, 1)

	v, m := i.Depths()
	require.Equal(t, 501, v)
	require.Equal(t, 0, m)
}

func TestBelowThresholdDoesNotTrigger(t *testing.T) {
	i, err := New(testConfig(), &mockStore{}, log.NewNopLogger())
	require.NoError(t, err)

	for n := 0; n < 499; n++ {
		i.PushVehicle(vr("V001", time.Now()))
	}
	require.Len(t, i.vehicles.trigger, 0)
}

func TestFlushEmptyBufferDoesNoWork(t *testing.T) {
	store := &mockStore{}
	i, err := New(testConfig(), store, log.NewNopLogger())
	require.NoError(t, err)

	i.flushVehicles()
	i.flushMeters()
	require.Empty(t, store.vehicles)
	require.Empty(t, store.meters)
}

func TestFlushCommitsSingleBatch(t *testing.T) {
	store := &mockStore{}
	i, err := New(testConfig(), store, log.NewNopLogger())
	require.NoError(t, err)

	now := time.Now()
	for n := 0; n < 500; n++ {
		i.PushVehicle(vr("V001", now))
	}
	i.flushVehicles()

	require.Len(t, store.vehicles, 1)
	require.Len(t, store.vehicles[0], 500)

	v, _ := i.Depths()
	require.Equal(t, 0, v)
}

func TestFailedFlushRequeuesWholeBatch(t *testing.T) {
	store := &mockStore{failNext: 1}
	i, err := New(testConfig(), store, log.NewNopLogger())
	require.NoError(t, err)

	now := time.Now()
	for n := 0; n < 100; n++ {
		i.PushVehicle(vr("V001", now.Add(time.Duration(n)*time.Second)))
	}

	i.flushVehicles()
	v, _ := i.Depths()
	require.Equal(t, 100, v, "failed batch must be re-enqueued")
	require.Equal(t, 0, store.vehicleCount())

	// Next trigger retries and persists everything exactly once.
	i.flushVehicles()
	require.Equal(t, 100, store.vehicleCount())
	v, _ = i.Depths()
	require.Equal(t, 0, v)
}

func TestRequeuePreservesOrderAheadOfNewPushes(t *testing.T) {
	store := &mockStore{failNext: 1}
	i, err := New(testConfig(), store, log.NewNopLogger())
	require.NoError(t, err)

	base := time.Now()
	i.PushVehicle(vr("A", base))
	i.PushVehicle(vr("B", base))
	i.flushVehicles() // fails, batch goes back to the front

	i.PushVehicle(vr("C", base))
	i.flushVehicles()

	require.Len(t, store.vehicles, 1)
	got := store.vehicles[0]
	require.Equal(t, []string{"A", "B", "C"}, []string{got[0].VehicleID, got[1].VehicleID, got[2].VehicleID})
}

func TestIntervalFlushPersistsSingleRecord(t *testing.T) {
	store := &mockStore{}
	cfg := Config{FlushSize: 500, FlushInterval: 20 * time.Millisecond}
	i, err := New(cfg, store, log.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, services.StartAndAwaitRunning(context.Background(), i))
	defer func() {
		require.NoError(t, services.StopAndAwaitTerminated(context.Background(), i))
	}()

	i.PushVehicle(vr("V001", time.Now()))

	require.Eventually(t, func() bool {
		return store.vehicleCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestShutdownDrainsBothClasses(t *testing.T) {
	store := &mockStore{}
	// Long interval so only the drain can flush.
	cfg := Config{FlushSize: 500, FlushInterval: time.Hour}
	i, err := New(cfg, store, log.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, services.StartAndAwaitRunning(context.Background(), i))
	i.PushVehicle(vr("V001", time.Now()))
	i.PushMeter(telemetry.MeterReading{MeterID: "M001", RecordedAt: time.Now()})

	require.NoError(t, services.StopAndAwaitTerminated(context.Background(), i))
	require.Equal(t, 1, store.vehicleCount())
	require.Len(t, store.meters, 1)
}

func TestConcurrentPushesAreConserved(t *testing.T) {
	store := &mockStore{}
	i, err := New(testConfig(), store, log.NewNopLogger())
	require.NoError(t, err)

	const (
		workers   = 8
		perWorker = 250
	)
	var wg sync.WaitGroup
	done := make(chan struct{})

	// Flush concurrently with the pushes to exercise the swap.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				i.flushVehicles()
			}
		}
	}()

	var pushers sync.WaitGroup
	for w := 0; w < workers; w++ {
		pushers.Add(1)
		go func() {
			defer pushers.Done()
			for n := 0; n < perWorker; n++ {
				i.PushVehicle(vr("V001", time.Now()))
			}
		}()
	}
	pushers.Wait()
	close(done)
	wg.Wait()

	i.flushVehicles()
	require.Equal(t, workers*perWorker, store.vehicleCount())
	v, _ := i.Depths()
	require.Equal(t, 0, v)
}

func TestConfigValidate(t *testing.T) {
	_, err := New(Config{FlushSize: 0, FlushInterval: time.Second}, &mockStore{}, log.NewNopLogger())
	require.Error(t, err)

	_, err = New(Config{FlushSize: 10, FlushInterval: 0}, &mockStore{}, log.NewNopLogger())
	require.Error(t, err)
}
