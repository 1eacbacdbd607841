package querier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gridstream/gridstream/griddb"
	"github.com/gridstream/gridstream/pkg/telemetry"
)

type fakeStore struct {
	vehicleCurrent *telemetry.VehicleCurrent
	meterCurrent   *telemetry.MeterCurrent
	vehicleHistory []telemetry.VehicleReading
	meterHistory   []telemetry.MeterReading
	summaries      []telemetry.HourlySummary
	link           *telemetry.VehicleMeterLink
	performance    *telemetry.VehiclePerformance
	summaryPerf    *telemetry.VehiclePerformance

	lastFrom, lastTo time.Time
	lastLimit        int
	putVehicle       string
	putMeter         string
}

func (f *fakeStore) VehicleLive(_ context.Context, _ string) (*telemetry.VehicleCurrent, error) {
	return f.vehicleCurrent, nil
}

func (f *fakeStore) MeterLive(_ context.Context, _ string) (*telemetry.MeterCurrent, error) {
	return f.meterCurrent, nil
}

func (f *fakeStore) VehicleHistory(_ context.Context, _ string, from, to time.Time, limit int) ([]telemetry.VehicleReading, error) {
	f.lastFrom, f.lastTo, f.lastLimit = from, to, limit
	return f.vehicleHistory, nil
}

func (f *fakeStore) MeterHistory(_ context.Context, _ string, from, to time.Time, limit int) ([]telemetry.MeterReading, error) {
	f.lastFrom, f.lastTo, f.lastLimit = from, to, limit
	return f.meterHistory, nil
}

func (f *fakeStore) FleetSummary(_ context.Context, _ telemetry.Class, from, to time.Time) ([]telemetry.HourlySummary, error) {
	f.lastFrom, f.lastTo = from, to
	return f.summaries, nil
}

func (f *fakeStore) Dashboard24h(_ context.Context, _ telemetry.Class, _ time.Time) ([]telemetry.HourlySummary, error) {
	return f.summaries, nil
}

func (f *fakeStore) GetLink(_ context.Context, _ string) (*telemetry.VehicleMeterLink, error) {
	if f.link == nil {
		return nil, griddb.ErrNoLink
	}
	return f.link, nil
}

func (f *fakeStore) PutLink(_ context.Context, vehicleID, meterID string) error {
	f.putVehicle, f.putMeter = vehicleID, meterID
	return nil
}

func (f *fakeStore) VehiclePerformance24h(_ context.Context, _ string, _ time.Time) (*telemetry.VehiclePerformance, error) {
	if f.performance == nil {
		return nil, griddb.ErrNoLink
	}
	return f.performance, nil
}

func (f *fakeStore) VehiclePerformanceSummary(_ context.Context, _ string) (*telemetry.VehiclePerformance, error) {
	if f.summaryPerf == nil {
		return nil, griddb.ErrNoLink
	}
	return f.summaryPerf, nil
}

func newTestQuerier(store Store) *Querier {
	return New(store, log.NewNopLogger())
}

func get(t *testing.T, h http.HandlerFunc, target string, vars map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = mux.SetURLVars(req, vars)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestVehicleLiveUnknownDeviceIsNull(t *testing.T) {
	q := newTestQuerier(&fakeStore{})
	rec := get(t, q.VehicleLiveHandler, "/api/v1/vehicles/V404/live", map[string]string{"id": "V404"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "null", strings.TrimSpace(rec.Body.String()),
		"unknown devices return null, not 404, so dashboards stay stable")
}

func TestVehicleLiveKnownDevice(t *testing.T) {
	q := newTestQuerier(&fakeStore{vehicleCurrent: &telemetry.VehicleCurrent{
		VehicleID:  "V001",
		SoC:        decimal.RequireFromString("87.25"),
		LastSeenAt: time.Date(2026, 8, 24, 10, 0, 30, 0, time.UTC),
	}})
	rec := get(t, q.VehicleLiveHandler, "/api/v1/vehicles/V001/live", map[string]string{"id": "V001"})

	require.Equal(t, http.StatusOK, rec.Code)
	var cur telemetry.VehicleCurrent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cur))
	require.Equal(t, "V001", cur.VehicleID)
	require.Equal(t, "87.25", cur.SoC.String())
}

func TestHistoryRequiresRange(t *testing.T) {
	q := newTestQuerier(&fakeStore{})

	for _, target := range []string{
		"/api/v1/vehicles/V001/history",
		"/api/v1/vehicles/V001/history?from=2026-08-24T00:00:00Z",
		"/api/v1/vehicles/V001/history?to=2026-08-24T00:00:00Z",
		"/api/v1/vehicles/V001/history?from=yesterday&to=2026-08-24T00:00:00Z",
	} {
		rec := get(t, q.VehicleHistoryHandler, target, map[string]string{"id": "V001"})
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestHistoryEmptyWindowIsEmptyList(t *testing.T) {
	store := &fakeStore{vehicleHistory: []telemetry.VehicleReading{}}
	q := newTestQuerier(store)

	rec := get(t, q.VehicleHistoryHandler,
		"/api/v1/vehicles/V001/history?from=2026-08-24T10:00:00Z&to=2026-08-24T10:00:00Z&limit=50",
		map[string]string{"id": "V001"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	require.Equal(t, 50, store.lastLimit)
}

func TestFleetSummaryParsesRange(t *testing.T) {
	store := &fakeStore{summaries: []telemetry.HourlySummary{{
		HourBucket:  time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
		Energy:      decimal.RequireFromString("42.5"),
		DeviceCount: 3,
		SampleCount: 180,
	}}}
	q := newTestQuerier(store)

	rec := get(t, q.FleetSummaryHandler,
		"/api/v1/fleet/meters/summary?from=2026-08-24T00:00:00Z&to=2026-08-25T00:00:00Z",
		map[string]string{"class": "meters"})

	require.Equal(t, http.StatusOK, rec.Code)
	var got []telemetry.HourlySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, int64(3), got[0].DeviceCount)
	require.True(t, store.lastFrom.Equal(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)))
}

func TestPerformanceUnlinkedVehicleIs404(t *testing.T) {
	q := newTestQuerier(&fakeStore{})
	rec := get(t, q.VehiclePerformanceHandler, "/api/v1/vehicles/V001/performance", map[string]string{"id": "V001"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPerformanceSourceSummary(t *testing.T) {
	store := &fakeStore{
		performance: &telemetry.VehiclePerformance{VehicleID: "V001", Efficiency: decimal.RequireFromString("91.50")},
		summaryPerf: &telemetry.VehiclePerformance{VehicleID: "V001", Efficiency: decimal.RequireFromString("90.00")},
	}
	q := newTestQuerier(store)

	rec := get(t, q.VehiclePerformanceHandler, "/api/v1/vehicles/V001/performance", map[string]string{"id": "V001"})
	var perf telemetry.VehiclePerformance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &perf))
	require.Equal(t, "91.5", perf.Efficiency.String(), "default recomputes live")

	rec = get(t, q.VehiclePerformanceHandler, "/api/v1/vehicles/V001/performance?source=summary", map[string]string{"id": "V001"})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &perf))
	require.Equal(t, "90", perf.Efficiency.String(), "summary serves the materialized row")
}

func TestPutLink(t *testing.T) {
	store := &fakeStore{}
	q := newTestQuerier(store)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/vehicles/V001/link", strings.NewReader(`{"meter_id": "M007"}`))
	req = mux.SetURLVars(req, map[string]string{"id": "V001"})
	rec := httptest.NewRecorder()
	q.PutLinkHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "V001", store.putVehicle)
	require.Equal(t, "M007", store.putMeter)
}

func TestPutLinkRejectsMissingMeter(t *testing.T) {
	q := newTestQuerier(&fakeStore{})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/vehicles/V001/link", strings.NewReader(`{}`))
	req = mux.SetURLVars(req, map[string]string{"id": "V001"})
	rec := httptest.NewRecorder()
	q.PutLinkHandler(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLinkNotFound(t *testing.T) {
	q := newTestQuerier(&fakeStore{})
	rec := get(t, q.GetLinkHandler, "/api/v1/vehicles/V001/link", map[string]string{"id": "V001"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
